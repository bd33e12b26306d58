package bid

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/html"
)

const userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"

// Client communicates with the contract registry over HTTP. A cookie jar
// keeps the session alive across the token, challenge, and query calls —
// the registry binds each challenge to the session that fetched it.
type Client struct {
	baseURL    string
	region     string
	clubCode   string
	httpClient *http.Client
}

// New creates a Client for the registry at baseURL, scoped to one
// region/club pair.
func New(baseURL, region, clubCode string) (*Client, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("creating cookie jar: %w", err)
	}
	return &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		region:   region,
		clubCode: clubCode,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
			Jar:     jar,
		},
	}, nil
}

// SessionToken fetches the registry portal page and extracts the CSRF
// token from its <meta name="csrf-token"> tag.
func (c *Client) SessionToken(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL, nil)
	if err != nil {
		return "", fmt.Errorf("creating portal request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetching portal page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("portal page: unexpected status %d", resp.StatusCode)
	}

	token, err := extractCSRFToken(resp.Body)
	if err != nil {
		return "", fmt.Errorf("extracting session token: %w", err)
	}
	return token, nil
}

// extractCSRFToken scans an HTML document for <meta name="csrf-token" content="...">.
func extractCSRFToken(r io.Reader) (string, error) {
	z := html.NewTokenizer(r)
	for {
		switch z.Next() {
		case html.ErrorToken:
			if z.Err() == io.EOF {
				return "", fmt.Errorf("no csrf-token meta tag in document")
			}
			return "", fmt.Errorf("parsing document: %w", z.Err())
		case html.StartTagToken, html.SelfClosingTagToken:
			tok := z.Token()
			if tok.Data != "meta" {
				continue
			}
			var name, content string
			for _, attr := range tok.Attr {
				switch attr.Key {
				case "name":
					name = attr.Val
				case "content":
					content = attr.Val
				}
			}
			if name == "csrf-token" && content != "" {
				return content, nil
			}
		}
	}
}

// FetchChallenge downloads one challenge image. The endpoint returns the
// image as a bare base64 string.
func (c *Client) FetchChallenge(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/get-captcha-base64", nil)
	if err != nil {
		return nil, fmt.Errorf("creating challenge request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching challenge: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("challenge endpoint: unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading challenge body: %w", err)
	}

	encoded := strings.TrimSpace(string(body))
	// Some responses carry a data-URI prefix; strip it before decoding.
	if i := strings.IndexByte(encoded, ','); i >= 0 && strings.HasPrefix(encoded, "data:") {
		encoded = encoded[i+1:]
	}

	img, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("decoding challenge image: %w", err)
	}
	return img, nil
}

// SubmitQuery posts one search for the given date with the decoded
// challenge text and returns the raw response body for classification.
func (c *Client) SubmitQuery(ctx context.Context, token, text, date string) ([]byte, error) {
	form := url.Values{
		"data":         {date},
		"uf":           {c.region},
		"codigo_clube": {c.clubCode},
		"captcha":      {text},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/busca-json", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("creating query request: %w", err)
	}
	req.Header.Set("X-CSRF-TOKEN", token)
	req.Header.Set("X-Requested-With", "XMLHttpRequest")
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded; charset=UTF-8")
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("submitting query: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading query response: %w", err)
	}
	return body, nil
}

// FetchAsset downloads a card asset (photo or crest) from url. A missing
// asset (non-200) is not an error: the renderer substitutes a remote
// placeholder or hides the element.
func (c *Client) FetchAsset(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating asset request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching asset %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, nil
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading asset %s: %w", url, err)
	}
	return data, nil
}

// PhotoURL returns the remote photo location for a record. Used both for
// asset fetching and as the renderer's placeholder when the download fails.
func (c *Client) PhotoURL(recordID string) string {
	return fmt.Sprintf("%s/foto-atleta/%s", c.baseURL, recordID)
}

// CrestURL returns the club crest location rendered on every card.
func (c *Client) CrestURL() string {
	return fmt.Sprintf("%s/files/clubes/%s/escudo.jpg", c.baseURL, c.clubCode)
}

// HistoryURL returns the public competition-history page for a record.
func (c *Client) HistoryURL(recordID string) string {
	return fmt.Sprintf("%s/atleta-competicoes/%s", c.baseURL, recordID)
}

// ParseRecords decodes an accepted query payload. A JSON value that is
// not a list (the registry answers `{}` on empty days) is a valid
// no-records outcome; anything that is not JSON at all is an error.
func ParseRecords(body []byte) ([]Record, error) {
	var records []Record
	if err := json.Unmarshal(body, &records); err == nil {
		return records, nil
	}

	var anything any
	if err := json.Unmarshal(body, &anything); err != nil {
		return nil, fmt.Errorf("query response is not JSON: %w", err)
	}
	return nil, nil
}
