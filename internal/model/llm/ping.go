package llm

import (
	"context"
	"net/http"

	"github.com/go-resty/resty/v2"
)

// Pinger 可探测 provider 是否可用的 Client
type Pinger interface {
	Ping(ctx context.Context) error
}

// Ping 探测 Client 可用性；未实现 Pinger 的本地 Client 视为可用
func Ping(ctx context.Context, c Client) error {
	if p, ok := c.(Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}

// pingModel GET 模型元数据端点，不消耗 token；状态码映射与补全调用一致
func pingModel(ctx context.Context, client *resty.Client, provider, url string, headers map[string]string) error {
	response, err := client.R().
		SetContext(ctx).
		SetHeaders(headers).
		Get(url)
	if err != nil {
		return transportError(provider, err)
	}
	if response.StatusCode() != http.StatusOK {
		return statusError(provider, response.StatusCode(), response.String())
	}
	return nil
}
