// Package omaha talks to the ChromeOS update server using the Omaha 3.0
// protocol, the same request a Chromebook sends when it checks for updates.
package omaha

import (
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cros-updates/cros-updates/internal/fingerprint"
)

const (
	DefaultServerURL = "https://tools.google.com/service/update2"
	ProtocolVersion  = "3.0"

	// maxResponseSize bounds how much of a response is read.
	maxResponseSize = 1 << 20
)

var ErrEmptyResponse = errors.New("update response has no app element")

// Request holds the per-device parameters of an update check.
type Request struct {
	AppID         string
	Track         string
	Board         string
	HardwareClass string
}

type requestXML struct {
	XMLName   xml.Name `xml:"request"`
	Protocol  string   `xml:"protocol,attr"`
	IsMachine string   `xml:"ismachine,attr"`
	App       appXML   `xml:"app"`
}

type appXML struct {
	AppID         string   `xml:"appid,attr"`
	Track         string   `xml:"track,attr"`
	Board         string   `xml:"board,attr"`
	HardwareClass string   `xml:"hardware_class,attr"`
	DeltaOkay     string   `xml:"delta_okay,attr"`
	UpdateCheck   struct{} `xml:"updatecheck"`
}

// EncodeRequest renders the XML body of an update check.
func EncodeRequest(req Request) ([]byte, error) {
	body, err := xml.MarshalIndent(requestXML{
		Protocol:  ProtocolVersion,
		IsMachine: "1",
		App: appXML{
			AppID:         req.AppID,
			Track:         req.Track,
			Board:         req.Board,
			HardwareClass: req.HardwareClass,
			DeltaOkay:     "false",
		},
	}, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode update request: %w", err)
	}
	return append([]byte(xml.Header), body...), nil
}

// DecodeResponse flattens the attributes of the app, updatecheck, manifest
// and action elements into a RawUpdateResponse. Known attributes are also
// stored under the canonical fingerprint keys. The first occurrence of an
// attribute name wins.
func DecodeResponse(data []byte) (fingerprint.RawUpdateResponse, error) {
	raw := fingerprint.RawUpdateResponse{}
	sawApp := false

	dec := xml.NewDecoder(bytes.NewReader(data))
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("decode update response: %w", err)
		}

		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}

		switch start.Name.Local {
		case "app":
			sawApp = true
		case "updatecheck", "manifest", "action":
		default:
			continue
		}

		for _, attr := range start.Attr {
			setOnce(raw, attr.Name.Local, attr.Value)

			switch start.Name.Local + "/" + attr.Name.Local {
			case "action/ChromeVersion":
				setOnce(raw, fingerprint.KeyAppVersion, attr.Value)
			case "action/ChromeOSVersion", "manifest/version":
				setOnce(raw, fingerprint.KeyPlatformVersion, attr.Value)
			case "updatecheck/_eol_date":
				setOnce(raw, fingerprint.KeyEOLDate, attr.Value)
			case "updatecheck/status":
				raw[fingerprint.KeyStatus] = attr.Value
			}
		}
	}

	if !sawApp {
		return nil, ErrEmptyResponse
	}
	return raw, nil
}

func setOnce(raw fingerprint.RawUpdateResponse, key, value string) {
	if _, ok := raw[key]; !ok && value != "" {
		raw[key] = value
	}
}

type Client struct {
	url    string
	client *http.Client
}

type Option func(*Client)

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.client = client
		}
	}
}

// WithTimeout sets the timeout of the default HTTP client.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.client.Timeout = timeout
		}
	}
}

func NewClient(url string, opts ...Option) *Client {
	if url == "" {
		url = DefaultServerURL
	}
	c := &Client{
		url:    url,
		client: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CheckForUpdate posts an update check for req and returns the flattened response.
func (c *Client) CheckForUpdate(ctx context.Context, req Request) (fingerprint.RawUpdateResponse, error) {
	body, err := EncodeRequest(req)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create update request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/xml")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to send update request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read update response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("update request failed: %s - %s", resp.Status, truncate(string(data), 256))
	}

	return DecodeResponse(data)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
