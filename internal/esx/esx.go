// Package esx indexes visits into Elasticsearch for reporting.
package esx

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	es8 "github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
	"github.com/samber/lo"

	"beacon-presence-api/internal/config"
)

type Client = es8.Client

// DefaultIndex holds one document per visit record.
const DefaultIndex = "visits"

// Open returns a nil client when ES_ADDRS is unset.
func Open(cfg *config.Config) (*Client, func(), error) {
	if strings.TrimSpace(cfg.ES.Addrs) == "" {
		return nil, func() {}, nil
	}
	addrs := lo.FilterMap(strings.Split(cfg.ES.Addrs, ","), func(s string, _ int) (string, bool) {
		t := strings.TrimSpace(s)
		return t, t != ""
	})
	es, err := es8.NewClient(es8.Config{Addresses: addrs, Username: cfg.ES.Username, Password: cfg.ES.Password})
	if err != nil {
		return nil, func() {}, err
	}
	return es, func() {}, nil
}

// VisitDoc is the indexed form of a visit record.
type VisitDoc struct {
	ID             string   `json:"id"`
	UserID         string   `json:"user_id,omitempty"`
	DeviceID       string   `json:"device_id,omitempty"`
	LocationID     string   `json:"location_id"`
	Day            string   `json:"day"`
	Kind           string   `json:"kind"`
	Decision       string   `json:"decision"`
	Timestamp      string   `json:"timestamp"`
	LastDetectedAt string   `json:"last_detected_at"`
	TotalTime      int      `json:"total_time"`
	Company        string   `json:"company,omitempty"`
	Industry       string   `json:"industry,omitempty"`
	Position       string   `json:"position,omitempty"`
	Interests      []string `json:"interests,omitempty"`
}

func IndexVisit(ctx context.Context, es *Client, index string, doc VisitDoc) error {
	if es == nil {
		return nil
	}
	b, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	res, err := es.Index(index, bytes.NewReader(b),
		es.Index.WithContext(ctx),
		es.Index.WithDocumentID(doc.ID))
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode >= http.StatusBadRequest {
		return fmtError(res)
	}
	return nil
}

// SearchVisits runs a free-text query over visitor attributes and locations
// and returns the matching documents.
func SearchVisits(ctx context.Context, es *Client, index string, query string, from, size int) ([]VisitDoc, int, error) {
	if es == nil {
		return []VisitDoc{}, 0, nil
	}
	q := map[string]any{
		"query": map[string]any{
			"multi_match": map[string]any{
				"query":  query,
				"fields": []string{"company^2", "industry", "position", "interests", "location_id", "user_id"},
			},
		},
		"sort": []any{map[string]any{"timestamp": "desc"}},
	}
	b, err := json.Marshal(q)
	if err != nil {
		return nil, 0, err
	}
	res, err := es.Search(
		es.Search.WithContext(ctx),
		es.Search.WithIndex(index),
		es.Search.WithBody(bytes.NewReader(b)),
		es.Search.WithFrom(from),
		es.Search.WithSize(size),
	)
	if err != nil {
		return nil, 0, err
	}
	defer res.Body.Close()
	if res.StatusCode >= http.StatusBadRequest {
		return nil, 0, fmtError(res)
	}

	var body struct {
		Hits struct {
			Total struct {
				Value int `json:"value"`
			} `json:"total"`
			Hits []hit `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		return nil, 0, fmt.Errorf("decode search response: %w", err)
	}
	docs := lo.Map(body.Hits.Hits, func(h hit, _ int) VisitDoc { return h.Source })
	return docs, body.Hits.Total.Value, nil
}

type hit struct {
	Source VisitDoc `json:"_source"`
}

func fmtError(res *esapi.Response) error { return fmt.Errorf("es error: %s", res.String()) }
