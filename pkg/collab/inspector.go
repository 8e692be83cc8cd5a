package collab

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/jdziat/sitepipe/pkg/pipeline"
	"github.com/jdziat/sitepipe/pkg/security"
)

const (
	defaultInspectTimeout = 10 * time.Second
	maxInspectBody        = 2 << 20
	inspectorUserAgent    = "Mozilla/5.0 (compatible; sitepipe/1.0)"
)

// SiteInspector analyses a domain by combining what the name says with
// whatever the live site at that domain already publishes.
type SiteInspector struct {
	client *http.Client
	scheme string
	logger *zap.Logger
}

// InspectorOption configures a SiteInspector.
type InspectorOption func(*SiteInspector)

// WithHTTPClient replaces the default client.
func WithHTTPClient(c *http.Client) InspectorOption {
	return func(s *SiteInspector) {
		if c != nil {
			s.client = c
		}
	}
}

// WithScheme sets the scheme used to reach the domain. Default "https".
func WithScheme(scheme string) InspectorOption {
	return func(s *SiteInspector) {
		if scheme != "" {
			s.scheme = scheme
		}
	}
}

// WithInspectorLogger sets the logger.
func WithInspectorLogger(l *zap.Logger) InspectorOption {
	return func(s *SiteInspector) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewSiteInspector creates an inspector.
func NewSiteInspector(opts ...InspectorOption) *SiteInspector {
	s := &SiteInspector{
		client: &http.Client{Timeout: defaultInspectTimeout},
		scheme: "https",
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var _ pipeline.Analyzer = (*SiteInspector)(nil)

// Analyze implements pipeline.Analyzer. An unreachable site is not an
// error; the result is marked unreachable and built from the name alone.
// Only a key that is not a valid domain fails.
func (s *SiteInspector) Analyze(ctx context.Context, key string) (pipeline.Analysis, error) {
	key = security.NormalizeKey(key)
	if err := security.ValidateKey(key); err != nil {
		return pipeline.Analysis{}, err
	}

	analysis := pipeline.KeyAnalysis(key)

	doc, err := s.fetch(ctx, s.scheme+"://"+key+"/")
	if err != nil {
		if ctx.Err() != nil {
			return pipeline.Analysis{}, ctx.Err()
		}
		s.logger.Debug("site not reachable", zap.String("key", key), zap.Error(err))
		return analysis, nil
	}

	analysis.Reachable = true
	analysis.Title = strings.TrimSpace(doc.Find("title").First().Text())
	analysis.Description = metaContent(doc, "description", "og:description")
	if kw := metaContent(doc, "keywords"); kw != "" {
		analysis.Keywords = mergeKeywords(analysis.Keywords, strings.Split(kw, ","))
	}
	return analysis, nil
}

func (s *SiteInspector) fetch(ctx context.Context, url string) (*goquery.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", inspectorUserAgent)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(io.LimitReader(resp.Body, maxInspectBody))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}
	return doc, nil
}

// metaContent returns the first non-empty content of the named meta tags,
// matching both name= and property= attributes.
func metaContent(doc *goquery.Document, names ...string) string {
	for _, name := range names {
		sel := fmt.Sprintf(`meta[name=%q], meta[property=%q]`, name, name)
		if v := strings.TrimSpace(doc.Find(sel).First().AttrOr("content", "")); v != "" {
			return v
		}
	}
	return ""
}

func mergeKeywords(base, extra []string) []string {
	seen := make(map[string]bool, len(base)+len(extra))
	out := make([]string, 0, len(base)+len(extra))
	for _, list := range [][]string{base, extra} {
		for _, kw := range list {
			kw = strings.ToLower(strings.TrimSpace(kw))
			if kw == "" || seen[kw] {
				continue
			}
			seen[kw] = true
			out = append(out, kw)
		}
	}
	return out
}
