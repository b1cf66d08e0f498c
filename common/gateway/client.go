package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/abevier/tsk/ratelimiter"

	"github.com/ceramicnetwork/go-registry/common/codec"
	"github.com/ceramicnetwork/go-registry/models"
)

const addPath = "/add?recursive=true&wrap-with-directory=true"
const getPath = "/ipfs/"

type addTask struct {
	name     string
	reader   io.Reader
	progress func(int64)
}

type getTask struct {
	cid string
}

// addResponse is one line of the newline-delimited JSON returned by the add endpoint.
type addResponse struct {
	Name string `json:"Name"`
	Hash string `json:"Hash"`
	Size string `json:"Size"`
}

// Client talks to a content gateway over plain HTTP.
type Client struct {
	url        string
	httpClient *http.Client
	logger     models.Logger
	limiter    *ratelimiter.RateLimiter[any, any]
}

func NewClient(logger models.Logger, url string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	c := Client{url: strings.TrimRight(url, "/"), httpClient: httpClient, logger: logger}
	limiterOpts := ratelimiter.Opts{
		Limit:             models.DefaultGatewayRateLimit,
		Burst:             models.DefaultGatewayRateLimit,
		MaxQueueDepth:     models.DefaultGatewayQueueDepth,
		FullQueueStrategy: ratelimiter.BlockWhenFull,
	}
	c.limiter = ratelimiter.New(limiterOpts, c.limiterRunFunction)
	return &c
}

// Add uploads one object wrapped in a directory and returns the CID of the object itself. The wrapping directory's
// hash is not used, so that fetching the returned CID yields the object's bytes.
func (c *Client) Add(ctx context.Context, name string, r io.Reader, progress func(int64)) (string, error) {
	res, err := c.limiter.Submit(ctx, addTask{name, r, progress})
	if err != nil {
		return "", err
	}
	return res.(string), nil
}

func (c *Client) Get(ctx context.Context, cid string) ([]byte, error) {
	res, err := c.limiter.Submit(ctx, getTask{cid})
	if err != nil {
		return nil, err
	}
	return res.([]byte), nil
}

func (c *Client) limiterRunFunction(ctx context.Context, task any) (any, error) {
	switch t := task.(type) {
	case addTask:
		return c.add(ctx, t)
	case getTask:
		return c.get(ctx, t.cid)
	}
	return nil, fmt.Errorf("unknown gateway task %T", task)
}

func (c *Client) add(ctx context.Context, task addTask) (string, error) {
	aCtx, aCancel := context.WithTimeout(ctx, models.GatewayUploadTimeout)
	defer aCancel()

	pr, pw := io.Pipe()
	defer pr.Close()
	mw := multipart.NewWriter(pw)
	go func() {
		part, err := mw.CreateFormFile("file", task.name)
		if err == nil {
			_, err = io.Copy(part, &countingReader{r: task.reader, progress: task.progress})
		}
		if err == nil {
			err = mw.Close()
		}
		pw.CloseWithError(err)
	}()

	req, err := http.NewRequestWithContext(aCtx, http.MethodPost, c.url+addPath, pr)
	if err != nil {
		return "", fmt.Errorf("add: error creating request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("add: error submitting request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("add: unexpected status %d: %s", resp.StatusCode, body)
	}
	return parseAddResponse(resp.Body, task.name)
}

// parseAddResponse picks the entry named after the uploaded file, or the last entry if none matches.
func parseAddResponse(r io.Reader, name string) (string, error) {
	dec := json.NewDecoder(r)
	var last, named *addResponse
	for {
		entry := new(addResponse)
		if err := dec.Decode(entry); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return "", fmt.Errorf("add: error decoding response: %w", err)
		}
		if len(entry.Hash) == 0 {
			continue
		}
		last = entry
		if entry.Name == name && named == nil {
			named = entry
		}
	}
	if named == nil {
		named = last
	}
	if named == nil {
		return "", errors.New("add: response contained no hash")
	}
	return codec.NormalizeCid(named.Hash)
}

func (c *Client) get(ctx context.Context, cid string) ([]byte, error) {
	gCtx, gCancel := context.WithTimeout(ctx, models.GatewayFetchTimeout)
	defer gCancel()

	req, err := http.NewRequestWithContext(gCtx, http.MethodGet, c.url+getPath+cid, nil)
	if err != nil {
		return nil, fmt.Errorf("get: error creating request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get: error submitting request: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("get: error reading response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("get: unexpected status %d for %s", resp.StatusCode, cid)
	}
	return body, nil
}

type countingReader struct {
	r        io.Reader
	progress func(int64)
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	if n > 0 && c.progress != nil {
		c.progress(int64(n))
	}
	return n, err
}
