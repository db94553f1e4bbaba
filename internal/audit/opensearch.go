package audit

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/opensearch-project/opensearch-go/v2"
	"github.com/opensearch-project/opensearch-go/v2/opensearchapi"

	"github.com/DentaMind/SmartDentalAI-sub000/internal/models"
)

// OpenSearchStore implements Store over an audit-log index. Deployments that
// ship the audit log to OpenSearch can point the engine here instead of at
// PostgreSQL.
type OpenSearchStore struct {
	client *opensearch.Client
	index  string
}

// OpenSearchOptions configures an OpenSearchStore.
type OpenSearchOptions struct {
	URL      string
	Username string
	Password string
	Insecure bool
	Index    string
}

const compositePageSize = 1000

// NewOpenSearchStore creates an OpenSearch-backed audit store.
func NewOpenSearchStore(opts OpenSearchOptions) (*OpenSearchStore, error) {
	client, err := opensearch.NewClient(opensearch.Config{
		Addresses: []string{opts.URL},
		Username:  opts.Username,
		Password:  opts.Password,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: opts.Insecure},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create opensearch client: %w", err)
	}

	return &OpenSearchStore{client: client, index: opts.Index}, nil
}

// filterQuery translates a Filter into an OpenSearch bool query.
func filterQuery(f Filter) map[string]interface{} {
	must := []map[string]interface{}{
		{"range": map[string]interface{}{"timestamp": map[string]interface{}{
			"gte": f.From.UTC().Format(time.RFC3339),
			"lt":  f.To.UTC().Format(time.RFC3339),
		}}},
	}
	mustNot := []map[string]interface{}{}

	if f.PathPrefix != "" {
		must = append(must, map[string]interface{}{
			"prefix": map[string]interface{}{"path.keyword": f.PathPrefix},
		})
	}
	for _, p := range f.ExcludePaths {
		mustNot = append(mustNot, map[string]interface{}{
			"prefix": map[string]interface{}{"path.keyword": p},
		})
	}
	if f.MinStatusCode > 0 {
		must = append(must, map[string]interface{}{
			"range": map[string]interface{}{"status_code": map[string]interface{}{"gte": f.MinStatusCode}},
		})
	}
	if f.PHIOnly {
		must = append(must, map[string]interface{}{
			"term": map[string]interface{}{"is_phi_access": true},
		})
	}
	if f.PatientsOnly {
		must = append(must, map[string]interface{}{
			"exists": map[string]interface{}{"field": "patient_id"},
		})
	}
	if f.AuthenticatedOnly {
		must = append(must, map[string]interface{}{
			"exists": map[string]interface{}{"field": "user_id"},
		})
	}
	if f.Hours != nil {
		op := "&&"
		if f.Hours.Start > f.Hours.End {
			op = "||"
		}
		must = append(must, map[string]interface{}{
			"script": map[string]interface{}{
				"script": map[string]interface{}{
					"source": fmt.Sprintf(
						"doc['timestamp'].value.getHour() >= params.start %s doc['timestamp'].value.getHour() < params.end", op),
					"params": map[string]interface{}{"start": f.Hours.Start, "end": f.Hours.End},
				},
			},
		})
	}

	return map[string]interface{}{
		"bool": map[string]interface{}{"must": must, "must_not": mustNot},
	}
}

func (s *OpenSearchStore) search(ctx context.Context, body map[string]interface{}, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal query: %w", err)
	}

	req := opensearchapi.SearchRequest{
		Index: []string{s.index},
		Body:  bytes.NewReader(payload),
	}
	resp, err := req.Do(ctx, s.client)
	if err != nil {
		return fmt.Errorf("failed to execute search: %w", err)
	}
	defer resp.Body.Close()

	if resp.IsError() {
		msg, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("opensearch returned %s: %s", resp.Status(), msg)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode search response: %w", err)
	}
	return nil
}

type compositeBucket struct {
	Key      map[string]interface{} `json:"key"`
	DocCount int64                  `json:"doc_count"`
	First    struct {
		Value *float64 `json:"value"`
	} `json:"first"`
	Last struct {
		Value *float64 `json:"value"`
	} `json:"last"`
	Distinct struct {
		Value int64 `json:"value"`
	} `json:"distinct"`
}

type compositeResponse struct {
	Aggregations struct {
		Groups struct {
			AfterKey map[string]interface{} `json:"after_key"`
			Buckets  []compositeBucket      `json:"buckets"`
		} `json:"groups"`
	} `json:"aggregations"`
}

// CountGroupedBy counts entries matching f, grouped by the given dimensions.
func (s *OpenSearchStore) CountGroupedBy(ctx context.Context, f Filter, by []Dimension) ([]GroupStat, error) {
	return s.grouped(ctx, f, by, "")
}

// DistinctCountGroupedBy additionally computes a distinct count per bucket.
func (s *OpenSearchStore) DistinctCountGroupedBy(ctx context.Context, f Filter, by []Dimension, distinct Dimension) ([]GroupStat, error) {
	return s.grouped(ctx, f, by, distinct)
}

func (s *OpenSearchStore) grouped(ctx context.Context, f Filter, by []Dimension, distinct Dimension) ([]GroupStat, error) {
	sources := make([]map[string]interface{}, 0, len(by))
	for _, d := range by {
		sources = append(sources, map[string]interface{}{
			string(d): map[string]interface{}{
				"terms": map[string]interface{}{
					"field":          string(d) + ".keyword",
					"missing_bucket": true,
				},
			},
		})
	}

	subAggs := map[string]interface{}{
		"first": map[string]interface{}{"min": map[string]interface{}{"field": "timestamp"}},
		"last":  map[string]interface{}{"max": map[string]interface{}{"field": "timestamp"}},
	}
	if distinct != "" {
		subAggs["distinct"] = map[string]interface{}{
			"cardinality": map[string]interface{}{"field": string(distinct) + ".keyword"},
		}
	}

	stats := []GroupStat{}
	var after map[string]interface{}
	for {
		composite := map[string]interface{}{
			"size":    compositePageSize,
			"sources": sources,
		}
		if after != nil {
			composite["after"] = after
		}
		body := map[string]interface{}{
			"size":  0,
			"query": filterQuery(f),
			"aggs": map[string]interface{}{
				"groups": map[string]interface{}{
					"composite": composite,
					"aggs":      subAggs,
				},
			},
		}

		var resp compositeResponse
		if err := s.search(ctx, body, &resp); err != nil {
			return nil, err
		}

		for _, b := range resp.Aggregations.Groups.Buckets {
			st := GroupStat{Count: b.DocCount, DistinctCount: b.Distinct.Value}
			for _, d := range by {
				v, _ := b.Key[string(d)].(string)
				switch d {
				case DimensionUser:
					st.UserID = v
				case DimensionRole:
					st.Role = v
				case DimensionIP:
					st.IP = v
				case DimensionPath:
					st.Path = v
				}
			}
			if b.First.Value != nil {
				st.First = time.UnixMilli(int64(*b.First.Value)).UTC()
			}
			if b.Last.Value != nil {
				st.Last = time.UnixMilli(int64(*b.Last.Value)).UTC()
			}
			stats = append(stats, st)
		}

		after = resp.Aggregations.Groups.AfterKey
		if after == nil || len(resp.Aggregations.Groups.Buckets) < compositePageSize {
			break
		}
	}
	return stats, nil
}

type dailyHistogramResponse struct {
	Aggregations struct {
		Days struct {
			Buckets []struct {
				Key      int64 `json:"key"` // epoch millis of the day
				DocCount int64 `json:"doc_count"`
				Patients struct {
					Value float64 `json:"value"`
				} `json:"patients"`
				PHI struct {
					DocCount int64 `json:"doc_count"`
				} `json:"phi"`
				Errors struct {
					DocCount int64 `json:"doc_count"`
				} `json:"errors"`
				Duration struct {
					Value *float64 `json:"value"`
				} `json:"duration"`
			} `json:"buckets"`
		} `json:"days"`
	} `json:"aggregations"`
}

func behaviorAggs() map[string]interface{} {
	return map[string]interface{}{
		"patients": map[string]interface{}{
			"cardinality": map[string]interface{}{"field": "patient_id.keyword"},
		},
		"phi": map[string]interface{}{
			"filter": map[string]interface{}{"term": map[string]interface{}{"is_phi_access": true}},
		},
		"errors": map[string]interface{}{
			"filter": map[string]interface{}{
				"range": map[string]interface{}{"status_code": map[string]interface{}{"gte": 400}},
			},
		},
		"duration": map[string]interface{}{
			"avg": map[string]interface{}{"field": "duration_ms"},
		},
	}
}

// UserDailyAggregates returns one aggregate per UTC day of user activity.
func (s *OpenSearchStore) UserDailyAggregates(ctx context.Context, userID string, from, to time.Time) ([]models.DailyUserAggregate, error) {
	query := filterQuery(Filter{From: from, To: to})
	query["bool"].(map[string]interface{})["must"] = append(
		query["bool"].(map[string]interface{})["must"].([]map[string]interface{}),
		map[string]interface{}{"term": map[string]interface{}{"user_id.keyword": userID}},
	)

	body := map[string]interface{}{
		"size":  0,
		"query": query,
		"aggs": map[string]interface{}{
			"days": map[string]interface{}{
				"date_histogram": map[string]interface{}{
					"field":             "timestamp",
					"calendar_interval": "day",
					"time_zone":         "UTC",
					"min_doc_count":     1,
				},
				"aggs": behaviorAggs(),
			},
		},
	}

	var resp dailyHistogramResponse
	if err := s.search(ctx, body, &resp); err != nil {
		return nil, err
	}

	aggs := make([]models.DailyUserAggregate, 0, len(resp.Aggregations.Days.Buckets))
	for _, b := range resp.Aggregations.Days.Buckets {
		a := models.DailyUserAggregate{
			Date:             time.UnixMilli(b.Key).UTC(),
			RequestCount:     float64(b.DocCount),
			DistinctPatients: b.Patients.Value,
			PHIAccessCount:   float64(b.PHI.DocCount),
			ErrorCount:       float64(b.Errors.DocCount),
		}
		if b.Duration.Value != nil {
			a.AvgDurationMS = *b.Duration.Value
		}
		aggs = append(aggs, a)
	}
	return aggs, nil
}

type userTermsResponse struct {
	Aggregations struct {
		Users struct {
			Buckets []struct {
				Key      string `json:"key"`
				DocCount int64  `json:"doc_count"`
				Role     struct {
					Buckets []struct {
						Key string `json:"key"`
					} `json:"buckets"`
				} `json:"role"`
				Patients struct {
					Value float64 `json:"value"`
				} `json:"patients"`
				PHI struct {
					DocCount int64 `json:"doc_count"`
				} `json:"phi"`
				Errors struct {
					DocCount int64 `json:"doc_count"`
				} `json:"errors"`
				Duration struct {
					Value *float64 `json:"value"`
				} `json:"duration"`
			} `json:"buckets"`
		} `json:"users"`
	} `json:"aggregations"`
}

// WindowAggregates returns one aggregate per user active in the window.
func (s *OpenSearchStore) WindowAggregates(ctx context.Context, from, to time.Time) ([]models.UserWindowAggregate, error) {
	aggs := behaviorAggs()
	aggs["role"] = map[string]interface{}{
		"terms": map[string]interface{}{"field": "user_role.keyword", "size": 1},
	}

	body := map[string]interface{}{
		"size":  0,
		"query": filterQuery(Filter{From: from, To: to, AuthenticatedOnly: true}),
		"aggs": map[string]interface{}{
			"users": map[string]interface{}{
				"terms": map[string]interface{}{"field": "user_id.keyword", "size": 10000},
				"aggs":  aggs,
			},
		},
	}

	var resp userTermsResponse
	if err := s.search(ctx, body, &resp); err != nil {
		return nil, err
	}

	out := make([]models.UserWindowAggregate, 0, len(resp.Aggregations.Users.Buckets))
	for _, b := range resp.Aggregations.Users.Buckets {
		a := models.UserWindowAggregate{
			UserID:           b.Key,
			RequestCount:     float64(b.DocCount),
			DistinctPatients: b.Patients.Value,
			PHIAccessCount:   float64(b.PHI.DocCount),
			ErrorCount:       float64(b.Errors.DocCount),
		}
		if len(b.Role.Buckets) > 0 {
			a.Role = b.Role.Buckets[0].Key
		}
		if b.Duration.Value != nil {
			a.AvgDurationMS = *b.Duration.Value
		}
		out = append(out, a)
	}
	return out, nil
}

// RoleUserDayDistinctPatients returns per-(user, day) distinct-patient counts
// for the role.
func (s *OpenSearchStore) RoleUserDayDistinctPatients(ctx context.Context, role string, from, to time.Time) ([]float64, error) {
	query := filterQuery(Filter{From: from, To: to, PatientsOnly: true, AuthenticatedOnly: true})
	query["bool"].(map[string]interface{})["must"] = append(
		query["bool"].(map[string]interface{})["must"].([]map[string]interface{}),
		map[string]interface{}{"term": map[string]interface{}{"user_role.keyword": role}},
	)

	samples := []float64{}
	var after map[string]interface{}
	for {
		composite := map[string]interface{}{
			"size": compositePageSize,
			"sources": []map[string]interface{}{
				{"user": map[string]interface{}{"terms": map[string]interface{}{"field": "user_id.keyword"}}},
				{"day": map[string]interface{}{"date_histogram": map[string]interface{}{
					"field": "timestamp", "calendar_interval": "day", "time_zone": "UTC",
				}}},
			},
		}
		if after != nil {
			composite["after"] = after
		}
		body := map[string]interface{}{
			"size":  0,
			"query": query,
			"aggs": map[string]interface{}{
				"groups": map[string]interface{}{
					"composite": composite,
					"aggs": map[string]interface{}{
						"distinct": map[string]interface{}{
							"cardinality": map[string]interface{}{"field": "patient_id.keyword"},
						},
					},
				},
			},
		}

		var resp compositeResponse
		if err := s.search(ctx, body, &resp); err != nil {
			return nil, err
		}
		for _, b := range resp.Aggregations.Groups.Buckets {
			samples = append(samples, float64(b.Distinct.Value))
		}
		after = resp.Aggregations.Groups.AfterKey
		if after == nil || len(resp.Aggregations.Groups.Buckets) < compositePageSize {
			break
		}
	}
	return samples, nil
}

type ipTermsResponse struct {
	Aggregations struct {
		IPs struct {
			Buckets []struct {
				Key string `json:"key"`
			} `json:"buckets"`
		} `json:"ips"`
	} `json:"aggregations"`
}

// UserIPs returns the distinct IPs seen for the user in the range.
func (s *OpenSearchStore) UserIPs(ctx context.Context, userID string, from, to time.Time) ([]string, error) {
	query := filterQuery(Filter{From: from, To: to})
	query["bool"].(map[string]interface{})["must"] = append(
		query["bool"].(map[string]interface{})["must"].([]map[string]interface{}),
		map[string]interface{}{"term": map[string]interface{}{"user_id.keyword": userID}},
	)

	body := map[string]interface{}{
		"size":  0,
		"query": query,
		"aggs": map[string]interface{}{
			"ips": map[string]interface{}{
				"terms": map[string]interface{}{"field": "ip_address.keyword", "size": 10000},
			},
		},
	}

	var resp ipTermsResponse
	if err := s.search(ctx, body, &resp); err != nil {
		return nil, err
	}

	ips := make([]string, 0, len(resp.Aggregations.IPs.Buckets))
	for _, b := range resp.Aggregations.IPs.Buckets {
		ips = append(ips, b.Key)
	}
	return ips, nil
}
