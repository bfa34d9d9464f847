package apiclient

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"hockeysdk-go/internal/cstmerr"

	"resty.dev/v3"
)

// RestyAdapter implements the HTTPClient interface using the resty library.
type RestyAdapter struct {
	client *resty.Client
}

// NewRestyAdapter creates a new RestyAdapter with default transport settings.
func NewRestyAdapter() *RestyAdapter {
	transportSettings := &resty.TransportSettings{
		IdleConnTimeout:     30 * time.Second,
		TLSHandshakeTimeout: 60 * time.Second,
	}
	client := resty.NewWithTransportSettings(transportSettings)
	client.SetHeader("User-Agent", "HockeySDK-Go")
	// Keep raw bytes available after SetResult/SetError decoding.
	client.SetResponseBodyUnlimitedReads(true)
	return &RestyAdapter{
		client: client,
	}
}

// NewRestyAdapterWithClient creates a new RestyAdapter using a pre-configured *resty.Client.
func NewRestyAdapterWithClient(client *resty.Client) *RestyAdapter {
	if client == nil {
		return NewRestyAdapter()
	}
	return &RestyAdapter{client: client}
}

// Close releases idle connections held by the underlying client.
func (ra *RestyAdapter) Close() error {
	return ra.client.Close()
}

// newRequest builds a resty request bound to ctx. The returned cancel func
// must be called once the response is no longer needed.
func (ra *RestyAdapter) newRequest(ctx context.Context, opts *RequestOptions) (*resty.Request, context.CancelFunc) {
	cancel := context.CancelFunc(func() {})
	if opts != nil && opts.Timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
	}
	req := ra.client.R().SetContext(ctx)
	if opts == nil {
		return req, cancel
	}
	if opts.Headers != nil {
		req.SetHeaders(opts.Headers)
	}
	if opts.QueryParams != nil {
		req.SetQueryParams(opts.QueryParams)
	}
	if opts.FormData != nil {
		req.SetFormData(opts.FormData)
	} else if opts.Body != nil {
		req.SetBody(opts.Body)
	}
	if opts.SuccessResult != nil {
		req.SetResult(opts.SuccessResult)
	}
	if opts.ErrorResult != nil {
		req.SetError(opts.ErrorResult)
	}
	return req, cancel
}

func toResponse(restyResp *resty.Response) *Response {
	return &Response{
		StatusCode: restyResp.StatusCode(),
		Body:       restyResp.Bytes(),
		Headers:    restyResp.Header(),
		RequestURL: restyResp.Request.URL,
	}
}

// Get implements the HTTPClient interface Get method.
func (ra *RestyAdapter) Get(ctx context.Context, url string, opts *RequestOptions) (*Response, error) {
	req, cancel := ra.newRequest(ctx, opts)
	defer cancel()
	restyResp, err := req.Get(url)
	if err != nil {
		return nil, cstmerr.NewAPIClientError(fmt.Errorf("HTTP GET request to %s failed: %w", url, err))
	}
	return toResponse(restyResp), nil
}

// Post implements the HTTPClient interface Post method.
func (ra *RestyAdapter) Post(ctx context.Context, url string, opts *RequestOptions) (*Response, error) {
	req, cancel := ra.newRequest(ctx, opts)
	defer cancel()
	restyResp, err := req.Post(url)
	if err != nil {
		return nil, cstmerr.NewAPIClientError(fmt.Errorf("HTTP POST request to %s failed: %w", url, err))
	}
	return toResponse(restyResp), nil
}

// Put implements the HTTPClient interface Put method.
func (ra *RestyAdapter) Put(ctx context.Context, url string, opts *RequestOptions) (*Response, error) {
	req, cancel := ra.newRequest(ctx, opts)
	defer cancel()
	restyResp, err := req.Put(url)
	if err != nil {
		return nil, cstmerr.NewAPIClientError(fmt.Errorf("HTTP PUT request to %s failed: %w", url, err))
	}
	return toResponse(restyResp), nil
}

// Head implements the HTTPClient interface Head method.
func (ra *RestyAdapter) Head(ctx context.Context, url string, opts *RequestOptions) (*Response, error) {
	var headOpts *RequestOptions
	if opts != nil {
		headOpts = &RequestOptions{Headers: opts.Headers, QueryParams: opts.QueryParams, Timeout: opts.Timeout}
	}
	req, cancel := ra.newRequest(ctx, headOpts)
	defer cancel()

	restyResp, err := req.Head(url)
	if err != nil {
		return nil, cstmerr.NewHeadError(fmt.Sprintf("HTTP HEAD request to %s failed: %v", url, err))
	}

	return &Response{
		StatusCode: restyResp.StatusCode(),
		Headers:    restyResp.Header(),
		RequestURL: restyResp.Request.URL,
	}, nil
}

// GetStream implements the HTTPClient interface GetStream method.
// opts.Timeout is ignored here: the body outlives this call.
func (ra *RestyAdapter) GetStream(ctx context.Context, url string, opts *RequestOptions) (*StreamResponse, error) {
	req := ra.client.R().SetContext(ctx)
	if opts != nil {
		if opts.Headers != nil {
			req.SetHeaders(opts.Headers)
		}
		if opts.QueryParams != nil {
			req.SetQueryParams(opts.QueryParams)
		}
	}
	// Tell Resty not to parse, buffer or automatically close the response body.
	req.SetDoNotParseResponse(true)
	req.SetResponseBodyUnlimitedReads(false)

	restyResp, err := req.Get(url)
	if err != nil {
		return nil, cstmerr.NewDownloadError(fmt.Sprintf("HTTP GET (stream) request to %s failed: %v", url, err))
	}

	contentLength, _ := strconv.ParseInt(restyResp.Header().Get("Content-Length"), 10, 64)

	return &StreamResponse{
		StatusCode:    restyResp.StatusCode(),
		Body:          restyResp.Body,
		Headers:       restyResp.Header(),
		ContentLength: contentLength,
		RequestURL:    restyResp.Request.URL,
	}, nil
}
