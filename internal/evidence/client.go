// Package evidence turns statement evidence and publication identifiers into
// Beacon citations, looking publications up in NCBI E-utilities.
package evidence

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/NCATS-Tangerine/tkg-beacon/internal/logging"
	"github.com/NCATS-Tangerine/tkg-beacon/internal/namespace"
	"github.com/NCATS-Tangerine/tkg-beacon/internal/retry"
	"github.com/NCATS-Tangerine/tkg-beacon/pkg/types"
)

const (
	DefaultBaseURL = "https://eutils.ncbi.nlm.nih.gov/entrez/eutils"
	pubmedDB       = "pubmed"
)

// Config configures the E-utilities client.
type Config struct {
	Enabled bool
	BaseURL string
	APIKey  string
	// RateLimit is requests per second. NCBI allows 3 without an API key.
	RateLimit float64
	Timeout   time.Duration
	Retry     *retry.Config
}

// Client resolves publication ids to citations.
type Client struct {
	enabled bool
	baseURL string
	apiKey  string
	http    *http.Client
	limiter *rate.Limiter
	retry   *retry.Config
	logger  *zap.Logger
}

// NewClient creates a client. A nil httpClient gets one with cfg.Timeout.
func NewClient(cfg Config, httpClient *http.Client, logger *zap.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = 3
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		enabled: cfg.Enabled,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		http:    httpClient,
		limiter: rate.NewLimiter(rate.Limit(cfg.RateLimit), 1),
		retry:   cfg.Retry,
		logger:  logger,
	}
}

// ParsePublication splits a publication id into an E-utilities database and
// a local id. PMID and PubMedID prefixes mean pubmed; a bare integer is a
// PubMed id. ok is false for URLs and anything else.
func ParsePublication(id string) (db, local string, ok bool) {
	id = strings.TrimSpace(id)
	if prefix, rest, found := namespace.Split(id); found {
		if strings.HasPrefix(rest, "//") {
			return "", "", false
		}
		switch strings.ToLower(prefix) {
		case "pmid", "pubmedid", "pubmed":
			return pubmedDB, rest, true
		default:
			return strings.ToLower(prefix), rest, true
		}
	}
	if _, err := strconv.ParseUint(id, 10, 64); err == nil {
		return pubmedDB, id, true
	}
	return "", "", false
}

// CitationURI is the landing page of a publication.
func CitationURI(db, local string) string {
	if db == pubmedDB {
		return "https://www.ncbi.nlm.nih.gov/pubmed/" + local
	}
	return "https://identifiers.org/" + db + ":" + local
}

// FromEvidence wraps evidence URIs as citations.
func FromEvidence(uris []string) []types.BeaconStatementCitation {
	out := make([]types.BeaconStatementCitation, 0, len(uris))
	for _, u := range uris {
		out = append(out, types.BeaconStatementCitation{URI: u})
	}
	return out
}

// Citations resolves every publication. Failed lookups degrade to id-only
// citations and never fail the call.
func (c *Client) Citations(ctx context.Context, publications []string) []types.BeaconStatementCitation {
	out := make([]types.BeaconStatementCitation, 0, len(publications))
	for _, p := range publications {
		out = append(out, c.Citation(ctx, p))
	}
	return out
}

// Citation resolves one publication id.
func (c *Client) Citation(ctx context.Context, publication string) types.BeaconStatementCitation {
	db, local, ok := ParsePublication(publication)
	if !ok {
		return types.BeaconStatementCitation{ID: publication}
	}
	id := db + ":" + local
	if !c.enabled {
		return types.BeaconStatementCitation{ID: id}
	}

	summary, err := retry.DoIfRetryable(ctx, c.retry, func() (*docSummary, error) {
		return c.summary(ctx, db, local)
	})
	if err != nil {
		lookupsTotal.WithLabelValues("error").Inc()
		c.logger.Warn("Publication lookup failed",
			zap.String("publication", id),
			zap.String("error", logging.SanitizeError(err)))
		return types.BeaconStatementCitation{ID: id}
	}
	lookupsTotal.WithLabelValues("ok").Inc()

	name := summary.Title
	if name != "" && summary.FullJournalName != "" {
		name = name + ", " + summary.FullJournalName
	}
	return types.BeaconStatementCitation{
		ID:   id,
		URI:  CitationURI(db, local),
		Name: name,
		Date: summary.PubDate,
	}
}

type docSummary struct {
	Title           string `json:"title"`
	FullJournalName string `json:"fulljournalname"`
	PubDate         string `json:"pubdate"`
	Error           string `json:"error"`
}

type esummaryResponse struct {
	Error  string                     `json:"error"`
	Result map[string]json.RawMessage `json:"result"`
}

func (c *Client) summary(ctx context.Context, db, local string) (*docSummary, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	q := url.Values{}
	q.Set("db", db)
	q.Set("id", local)
	q.Set("retmode", "json")
	if c.apiKey != "" {
		q.Set("api_key", c.apiKey)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/esummary.fcgi?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("building esummary request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("esummary request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("esummary: status %d", resp.StatusCode)
	}

	var body esummaryResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decoding esummary response: %w", err)
	}
	if body.Error != "" {
		return nil, fmt.Errorf("esummary: %s", body.Error)
	}
	raw, ok := body.Result[local]
	if !ok {
		return nil, fmt.Errorf("esummary: no summary for %s:%s", db, local)
	}
	var doc docSummary
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decoding summary for %s:%s: %w", db, local, err)
	}
	if doc.Error != "" {
		return nil, fmt.Errorf("esummary %s:%s: %s", db, local, doc.Error)
	}
	return &doc, nil
}
