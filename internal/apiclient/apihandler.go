package apiclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"hockeysdk-go/internal/cstmerr"
	"hockeysdk-go/internal/logging"
	SharedModels "hockeysdk-go/internal/shared"
)

type UpdateErr = SharedModels.UpdateErr

// APIClient talks to the distribution backend on behalf of one app.
type APIClient struct {
	client        HTTPClient
	mu            sync.RWMutex
	serverURL     string
	appIdentifier string
}

// New creates a new APIClient backed by resty.
func New(serverURL, appIdentifier string) *APIClient {
	return NewWithHTTPClient(NewRestyAdapter(), serverURL, appIdentifier)
}

// NewWithHTTPClient creates an APIClient around any HTTPClient implementation.
func NewWithHTTPClient(client HTTPClient, serverURL, appIdentifier string) *APIClient {
	ac := &APIClient{client: client}
	ac.Configure(serverURL, appIdentifier)
	return ac
}

// Configure replaces the server URL and app identifier used by later requests.
func (ac *APIClient) Configure(serverURL, appIdentifier string) {
	if serverURL != "" && !strings.HasSuffix(serverURL, "/") {
		serverURL += "/"
	}
	ac.mu.Lock()
	ac.serverURL = serverURL
	ac.appIdentifier = appIdentifier
	ac.mu.Unlock()
}

func (ac *APIClient) base() (string, string) {
	ac.mu.RLock()
	defer ac.mu.RUnlock()
	return ac.serverURL, ac.appIdentifier
}

// HTTP exposes the underlying transport, e.g. for telemetry posts to a foreign endpoint.
func (ac *APIClient) HTTP() HTTPClient {
	return ac.client
}

// VersionsURL builds the version metadata URL for the given format ("json" or "apk").
func (ac *APIClient) VersionsURL(format string, q SharedModels.VersionQuery) string {
	serverURL, appID := ac.base()
	if appID == "" {
		appID = q.PackageName
	}

	var builder strings.Builder
	builder.WriteString(serverURL)
	builder.WriteString("api/2/apps/")
	builder.WriteString(url.PathEscape(appID))
	builder.WriteString("?format=")
	builder.WriteString(format)

	if q.DeviceID != "" {
		builder.WriteString("&udid=" + url.QueryEscape(q.DeviceID))
	}
	sdkName, sdkVersion := q.SDKName, q.SDKVersion
	if sdkName == "" {
		sdkName = SharedModels.SDKName
	}
	if sdkVersion == "" {
		sdkVersion = SharedModels.SDKVersion
	}
	builder.WriteString("&os=" + SharedModels.OSName)
	builder.WriteString("&os_version=" + url.QueryEscape(q.OSVersion))
	builder.WriteString("&device=" + url.QueryEscape(q.Device))
	builder.WriteString("&oem=" + url.QueryEscape(q.OEM))
	builder.WriteString("&app_version=" + url.QueryEscape(q.AppVersion))
	builder.WriteString("&sdk=" + url.QueryEscape(sdkName))
	builder.WriteString("&sdk_version=" + url.QueryEscape(sdkVersion))
	builder.WriteString("&lang=" + url.QueryEscape(q.Language))
	builder.WriteString("&usage_time=" + strconv.FormatInt(q.UsageTime, 10))
	return builder.String()
}

// FetchVersions fetches the raw version metadata payload.
func (ac *APIClient) FetchVersions(ctx context.Context, q SharedModels.VersionQuery) ([]byte, error) {
	versionsURL := ac.VersionsURL("json", q)
	log := logging.Logger()
	log.Debugf("Checking for updates at: %s", versionsURL)

	var apiErr UpdateErr
	opts := &RequestOptions{
		Headers:     map[string]string{"Accept": "application/json"},
		ErrorResult: &apiErr,
	}

	resp, err := ac.client.Get(ctx, versionsURL, opts)
	if err != nil {
		log.Warnf("Error during HTTP GET for update check: %v", err)
		return nil, err
	}

	if resp.IsError() {
		errMsg := apiErr.Message
		if errMsg == "" {
			errMsg = string(resp.Body)
		}
		log.Warnf("Update check API request failed with status %d: %s", resp.StatusCode, errMsg)
		return nil, cstmerr.NewAPIRequestFailedError(resp.StatusCode, errMsg)
	}

	if !resp.IsSuccess() {
		errMsg := fmt.Sprintf("API request returned an unexpected non-success status code %d. Body: %s", resp.StatusCode, string(resp.Body))
		log.Warn(errMsg)
		return nil, cstmerr.NewAPIRequestFailedError(resp.StatusCode, errMsg)
	}

	log.Debugf("Received %d bytes of version info", len(resp.Body))
	return resp.Body, nil
}

// DownloadFile downloads a file from the given URL to the destination path.
// It resumes a partial download when the server supports byte ranges.
func (ac *APIClient) DownloadFile(ctx context.Context, url string, destinationPath string) error {
	log := logging.Logger()
	log.Infof("Attempting to download from %s to %s", url, destinationPath)

	parentDir := filepath.Dir(destinationPath)
	if err := SharedModels.CheckAndCreateDir(parentDir); err != nil {
		return cstmerr.NewFileSystemError(fmt.Sprintf("failed to create parent directory %s for download: %v", parentDir, err))
	}

	// Step 1: HEAD Request to get file info (size, range support)
	headResp, err := ac.client.Head(ctx, url, &RequestOptions{})
	if err != nil {
		log.Warnf("HEAD request for download failed: %v", err)
		return err
	}

	if headResp.StatusCode != http.StatusOK && headResp.StatusCode != http.StatusPartialContent {
		return cstmerr.NewHeadError(fmt.Sprintf("HEAD request failed with status: %d", headResp.StatusCode))
	}

	totalSizeStr := headResp.Headers.Get("X-Content-Length")
	if totalSizeStr == "" {
		totalSizeStr = headResp.Headers.Get("Content-Length")
	}
	totalSize, _ := strconv.ParseInt(totalSizeStr, 10, 64)

	supportsRange := headResp.Headers.Get("Accept-Ranges") == "bytes"

	log.Debugf("File size: %d, Supports range: %t", totalSize, supportsRange)

	// Step 2: Determine current downloaded size
	var currentOffset int64
	fileInfo, err := os.Stat(destinationPath)
	if err == nil {
		currentOffset = fileInfo.Size()
	} else if !os.IsNotExist(err) {
		return cstmerr.NewFileSystemError(fmt.Sprintf("failed to get metadata for existing file %s: %v", destinationPath, err))
	}

	// Step 3: Compare downloaded size
	if totalSize > 0 && currentOffset >= totalSize {
		log.Infof("File %s already fully downloaded (%d bytes).", destinationPath, currentOffset)
		return nil
	}

	// Step 4: Make GET request (potentially ranged)
	getStreamOpts := &RequestOptions{
		Headers: make(map[string]string),
	}
	var openMode int
	if currentOffset > 0 && supportsRange {
		log.Infof("Resuming download from offset %d", currentOffset)
		getStreamOpts.Headers["Range"] = fmt.Sprintf("bytes=%d-", currentOffset)
		openMode = os.O_APPEND | os.O_WRONLY | os.O_CREATE
	} else {
		openMode = os.O_TRUNC | os.O_CREATE | os.O_WRONLY
		currentOffset = 0
	}

	streamResp, err := ac.client.GetStream(ctx, url, getStreamOpts)
	if err != nil {
		return err
	}
	defer streamResp.Body.Close()

	if streamResp.StatusCode != http.StatusOK && streamResp.StatusCode != http.StatusPartialContent {
		return cstmerr.NewDownloadError(fmt.Sprintf("download request failed with status: %d", streamResp.StatusCode))
	}

	// A 200 answer to a Range request carries the full file.
	if streamResp.StatusCode == http.StatusOK && currentOffset > 0 {
		log.Info("Server responded with 200 OK despite a Range request, restarting download.")
		openMode = os.O_TRUNC | os.O_CREATE | os.O_WRONLY
		currentOffset = 0
	}
	destFile, err := os.OpenFile(destinationPath, openMode, 0644)
	if err != nil {
		return cstmerr.NewFileIOError(fmt.Sprintf("failed to open/create destination file %s", destinationPath), err)
	}
	defer destFile.Close()

	bytesWritten, err := io.Copy(destFile, streamResp.Body)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || strings.Contains(err.Error(), "context deadline exceeded") {
			return cstmerr.NewTimeoutError(err)
		}
		return cstmerr.NewDownloadError(fmt.Sprintf("error reading download stream or writing to file: %v", err))
	}

	log.Infof("Downloaded %d bytes to %s. Total size on disk now: %d", bytesWritten, destinationPath, currentOffset+bytesWritten)
	return nil
}

// UploadCrash posts one crash report as a url-encoded form.
func (ac *APIClient) UploadCrash(ctx context.Context, upload SharedModels.CrashUpload) error {
	serverURL, appID := ac.base()
	crashURL := serverURL + "api/2/apps/" + url.PathEscape(appID) + "/crashes/"

	sdkName, sdkVersion := upload.SDKName, upload.SDKVersion
	if sdkName == "" {
		sdkName = SharedModels.SDKName
	}
	if sdkVersion == "" {
		sdkVersion = SharedModels.SDKVersion
	}
	opts := &RequestOptions{
		FormData: map[string]string{
			"raw":         upload.Raw,
			"userID":      upload.UserID,
			"contact":     upload.Contact,
			"description": upload.Description,
			"sdk":         sdkName,
			"sdk_version": sdkVersion,
		},
	}

	resp, err := ac.client.Post(ctx, crashURL, opts)
	if err != nil {
		return err
	}
	if !resp.IsSuccess() {
		errorMessage := string(resp.Body)
		if errorMessage == "" {
			errorMessage = "Unknown error from API"
		}
		logging.Logger().Warnf("Crash upload failed with status %d: %s", resp.StatusCode, errorMessage)
		return cstmerr.NewAPIRequestFailedError(resp.StatusCode, errorMessage)
	}
	return nil
}

// SendFeedback creates a feedback thread, or appends to the thread named by msg.Token.
func (ac *APIClient) SendFeedback(ctx context.Context, msg SharedModels.FeedbackMessage) (*SharedModels.FeedbackResponse, error) {
	serverURL, appID := ac.base()
	feedbackURL := serverURL + "api/2/apps/" + url.PathEscape(appID) + "/feedback/"

	var result SharedModels.FeedbackResponse
	opts := &RequestOptions{
		FormData: map[string]string{
			"name":    msg.Name,
			"email":   msg.Email,
			"subject": msg.Subject,
			"text":    msg.Text,
		},
		SuccessResult: &result,
	}

	var (
		resp *Response
		err  error
	)
	if msg.Token != "" {
		resp, err = ac.client.Put(ctx, feedbackURL+url.PathEscape(msg.Token)+"/", opts)
	} else {
		resp, err = ac.client.Post(ctx, feedbackURL, opts)
	}
	if err != nil {
		return nil, err
	}
	if !resp.IsSuccess() {
		return nil, cstmerr.NewAPIRequestFailedError(resp.StatusCode, string(resp.Body))
	}
	if result.Token == "" && len(resp.Body) > 0 {
		if err := json.Unmarshal(resp.Body, &result); err != nil {
			return nil, cstmerr.NewAPIClientError(fmt.Errorf("failed to unmarshal feedback response: %w", err))
		}
	}
	return &result, nil
}

// PostTelemetry sends one newline-delimited JSON batch to endpoint.
func (ac *APIClient) PostTelemetry(ctx context.Context, endpoint string, payload []byte) error {
	opts := &RequestOptions{
		Headers: map[string]string{"Content-Type": "application/x-json-stream"},
		Body:    payload,
	}
	resp, err := ac.client.Post(ctx, endpoint, opts)
	if err != nil {
		return err
	}
	if !resp.IsSuccess() {
		return cstmerr.NewAPIRequestFailedError(resp.StatusCode, string(resp.Body))
	}
	return nil
}
