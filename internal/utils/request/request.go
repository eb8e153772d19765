package request

import (
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
)

const defaultTimeout = 15 * time.Second

// Request 共享的HTTP客户端，每个外部调用只尝试一次
var Request = New(defaultTimeout)

// New builds a resty client that honours proxy environment variables and never retries.
func New(timeout time.Duration) *resty.Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return resty.New().SetTransport(&http.Transport{
		Proxy: http.ProxyFromEnvironment, // 通用适配环境变量
	}).
		SetRetryCount(0).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json")
}
