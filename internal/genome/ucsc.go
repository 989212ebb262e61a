package genome

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultUCSCBaseURL is the public UCSC Genome Browser REST endpoint.
const DefaultUCSCBaseURL = "https://api.genome.ucsc.edu"

// UCSCSource fetches sequence from the UCSC REST API. The API uses zero-based
// half-open coordinates, matching Region.
type UCSCSource struct {
	baseURL    string
	assembly   string
	httpClient *http.Client
}

// NewUCSCSource creates a remote source for an assembly such as "hg19".
// An empty baseURL selects DefaultUCSCBaseURL.
func NewUCSCSource(baseURL, assembly string) *UCSCSource {
	if baseURL == "" {
		baseURL = DefaultUCSCBaseURL
	}
	return &UCSCSource{
		baseURL:  strings.TrimRight(baseURL, "/"),
		assembly: assembly,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

type ucscSequence struct {
	DNA   string `json:"dna"`
	Error string `json:"error"`
}

// Fetch returns the bases in [start, end) of chrom.
func (s *UCSCSource) Fetch(ctx context.Context, chrom string, start, end int64) (string, error) {
	u := fmt.Sprintf("%s/getData/sequence?genome=%s;chrom=%s;start=%d;end=%d",
		s.baseURL, url.QueryEscape(s.assembly), url.QueryEscape(chrom), start, end)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return "", fmt.Errorf("build UCSC request: %w", err)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", &SourceUnavailableError{Genome: s.assembly, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", &SourceUnavailableError{
			Genome: s.assembly,
			Err:    fmt.Errorf("UCSC API error %d: %s", resp.StatusCode, strings.TrimSpace(string(body))),
		}
	}

	var seq ucscSequence
	if err := json.NewDecoder(resp.Body).Decode(&seq); err != nil {
		return "", fmt.Errorf("decode UCSC response: %w", err)
	}
	if seq.Error != "" {
		return "", fmt.Errorf("UCSC API: %s", seq.Error)
	}
	if int64(len(seq.DNA)) != end-start {
		return "", fmt.Errorf("UCSC API returned %d bases for %s:%d-%d", len(seq.DNA), chrom, start, end)
	}

	return strings.ToUpper(seq.DNA), nil
}

// Close is a no-op; the HTTP client holds no per-source resources.
func (s *UCSCSource) Close() error {
	return nil
}
