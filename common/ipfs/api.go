package ipfs

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/abevier/tsk/ratelimiter"

	iface "github.com/ipfs/boxo/coreiface"
	"github.com/ipfs/boxo/coreiface/options"
	"github.com/ipfs/boxo/coreiface/path"
	"github.com/ipfs/boxo/files"
	"github.com/ipfs/go-cid"
	"github.com/ipfs/kubo/client/rpc"
	ma "github.com/multiformats/go-multiaddr"

	"github.com/ceramicnetwork/go-registry/models"
)

type addTask struct {
	name     string
	reader   io.Reader
	progress func(int64)
}

type getTask struct {
	cid cid.Cid
}

// IpfsApi is a content store backed by a kubo node's RPC API.
type IpfsApi struct {
	core    iface.CoreAPI
	logger  models.Logger
	addrStr string
	limiter *ratelimiter.RateLimiter[any, any]
}

func createCoreApi(addrStr string) (*rpc.HttpApi, error) {
	addr, err := ma.NewMultiaddr(addrStr)
	if err != nil {
		c := &http.Client{
			Transport: &http.Transport{
				Proxy:             http.ProxyFromEnvironment,
				DisableKeepAlives: true,
			},
		}
		coreApi, err := rpc.NewURLApiWithClient(addrStr, c)
		if err != nil {
			return nil, err
		}
		return coreApi, nil
	}

	coreApi, err := rpc.NewApi(addr)
	if err != nil {
		return nil, err
	}
	return coreApi, nil
}

func NewIpfsApiWithCore(logger models.Logger, addrStr string, coreApi iface.CoreAPI) *IpfsApi {
	ipfs := IpfsApi{core: coreApi, logger: logger, addrStr: addrStr}
	limiterOpts := ratelimiter.Opts{
		Limit:             models.DefaultGatewayRateLimit,
		Burst:             models.DefaultGatewayRateLimit,
		MaxQueueDepth:     models.DefaultGatewayQueueDepth,
		FullQueueStrategy: ratelimiter.BlockWhenFull,
	}
	ipfs.limiter = ratelimiter.New(limiterOpts, ipfs.limiterRunFunction)

	return &ipfs
}

// NewIpfsApi accepts either a multiaddr or a URL for the node's RPC endpoint.
func NewIpfsApi(logger models.Logger, addrStr string) (*IpfsApi, error) {
	coreApi, err := createCoreApi(addrStr)
	if err != nil {
		return nil, fmt.Errorf("error creating ipfs client at %s: %w", addrStr, err)
	}

	return NewIpfsApiWithCore(logger, addrStr, coreApi), nil
}

func (i *IpfsApi) Add(ctx context.Context, name string, r io.Reader, progress func(int64)) (string, error) {
	res, err := i.limiter.Submit(ctx, addTask{name, r, progress})
	if err != nil {
		return "", err
	}
	return res.(string), nil
}

func (i *IpfsApi) Get(ctx context.Context, cidStr string) ([]byte, error) {
	c, err := cid.Decode(cidStr)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrInvalidCidEncoding, err)
	}
	res, err := i.limiter.Submit(ctx, getTask{c})
	if err != nil {
		return nil, err
	}
	return res.([]byte), nil
}

func (i *IpfsApi) add(ctx context.Context, task addTask) (string, error) {
	ctxWithTimeout, cancel := context.WithTimeout(ctx, models.GatewayUploadTimeout)
	defer cancel()

	i.logger.Debugf("adding %s to ipfs on %s", task.name, i.addrStr)
	node := files.NewReaderFile(&countingReader{r: task.reader, progress: task.progress})
	resolved, err := i.core.Unixfs().Add(ctxWithTimeout, node, options.Unixfs.Pin(true))
	if err != nil {
		return "", fmt.Errorf("adding %s failed on ipfs instance at %s: %w", task.name, i.addrStr, err)
	}
	return resolved.Cid().String(), nil
}

func (i *IpfsApi) get(ctx context.Context, c cid.Cid) ([]byte, error) {
	ctxWithTimeout, cancel := context.WithTimeout(ctx, models.GatewayFetchTimeout)
	defer cancel()

	node, err := i.core.Unixfs().Get(ctxWithTimeout, path.IpfsPath(c))
	if err != nil {
		return nil, fmt.Errorf("fetching %s failed on ipfs instance at %s: %w", c, i.addrStr, err)
	}
	defer node.Close()
	file, ok := node.(files.File)
	if !ok {
		return nil, fmt.Errorf("%s is not a file", c)
	}
	return io.ReadAll(file)
}

func (i *IpfsApi) processIpfsTask(ctx context.Context, task any) (any, error) {
	switch t := task.(type) {
	case addTask:
		return i.add(ctx, t)
	case getTask:
		return i.get(ctx, t.cid)
	}
	return nil, fmt.Errorf("unknown ipfs task received %v", task)
}

func (i *IpfsApi) limiterRunFunction(ctx context.Context, task any) (any, error) {
	res, err := i.processIpfsTask(ctx, task)
	if err != nil {
		i.logger.Errorf("IPFS error for task %T on ipfs %v: %v", task, i.addrStr, err)
		return nil, err
	}
	return res, nil
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
