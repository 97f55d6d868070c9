package remote

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestBuildPageSQL(t *testing.T) {
	sql := BuildPageSQL("charges", PageRequest{
		EntityID:       "St. Mary's",
		AfterKey:       41,
		Limit:          1000,
		DRGCodes:       []string{"470", "871"},
		ProcedureCodes: []string{"99213"},
	})
	for _, want := range []string{
		"FROM `charges`",
		"entity_id = 'St. Mary''s'",
		"row_key > 41",
		"ms_drg_code IN ('470', '871') OR cpt_code IN ('99213') OR hcpcs_code IN ('99213')",
		"ORDER BY row_key LIMIT 1000",
	} {
		if !strings.Contains(sql, want) {
			t.Errorf("SQL missing %q:\n%s", want, sql)
		}
	}

	noProc := BuildPageSQL("charges", PageRequest{EntityID: "H1", Limit: 5, DRGCodes: []string{"470"}})
	if strings.Contains(noProc, "cpt_code IN") {
		t.Errorf("empty procedure list must be left out: %s", noProc)
	}
}

func TestHTTPSource_FetchPage(t *testing.T) {
	var gotQuery, gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("q")
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"query_execution_status": "Success",
			"query_execution_message": "",
			"rows": [
				{"entity_id": "H1", "row_key": "7", "description": "joint", "ms_drg_code": "470",
				 "gross_charge": "12000.50", "negotiated_dollar": null, "discounted_cash": ""},
				{"entity_id": "H1", "row_key": 9, "description": "visit", "cpt_code": 99213,
				 "negotiated_dollar": 90.25, "payer_name": "Aetna"}
			]
		}`))
	}))
	defer srv.Close()

	s := NewHTTPSource(srv.URL, "secret", 1000, 5*time.Second)
	rows, err := s.FetchPage(context.Background(), PageRequest{EntityID: "H1", Limit: 1000, DRGCodes: []string{"470"}})
	if err != nil {
		t.Fatalf("FetchPage: %v", err)
	}
	if gotAuth != "Bearer secret" {
		t.Errorf("Authorization: %q", gotAuth)
	}
	if !strings.Contains(gotQuery, "entity_id = 'H1'") {
		t.Errorf("query not passed through: %q", gotQuery)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	r0, r1 := rows[0], rows[1]
	if r0.RowKey != 7 || *r0.MSDRGCode != "470" || *r0.GrossCharge != 12000.50 {
		t.Errorf("row 0: %+v", r0)
	}
	if r0.NegotiatedDollar != nil || r0.DiscountedCash != nil {
		t.Error("null and empty amounts must decode as nil")
	}
	if r1.RowKey != 9 || *r1.CPTCode != "99213" || *r1.NegotiatedDollar != 90.25 || *r1.PayerName != "Aetna" {
		t.Errorf("row 1: %+v", r1)
	}
}

func TestHTTPSource_Errors(t *testing.T) {
	status := http.StatusOK
	body := `{"query_execution_status": "Error", "query_execution_message": "query timeout"}`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		w.Write([]byte(body))
	}))
	defer srv.Close()
	s := NewHTTPSource(srv.URL, "", 10, time.Second)

	_, err := s.FetchPage(context.Background(), PageRequest{EntityID: "H1", Limit: 10})
	var qe *QueryError
	if !errors.As(err, &qe) || !Retryable(err) {
		t.Fatalf("expected retryable QueryError, got %v", err)
	}

	status, body = http.StatusForbidden, "forbidden"
	_, err = s.FetchPage(context.Background(), PageRequest{EntityID: "H1", Limit: 10})
	var se *StatusError
	if !errors.As(err, &se) || se.StatusCode != 403 || Retryable(err) {
		t.Fatalf("expected permanent StatusError 403, got %v", err)
	}
}

func TestHTTPSource_ListHospitalsPages(t *testing.T) {
	pages := []string{
		`{"query_execution_status":"Success","rows":[{"entity_id":"A","name":"Alpha","state":"NY"},{"entity_id":"B","name":"Beta","ccn":"330002"}]}`,
		`{"query_execution_status":"Success","rows":[{"entity_id":"C","name":"Gamma"}]}`,
	}
	var queries []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		queries = append(queries, r.URL.Query().Get("q"))
		w.Write([]byte(pages[len(queries)-1]))
	}))
	defer srv.Close()

	s := NewHTTPSource(srv.URL, "", 2, time.Second)
	hs, err := s.ListHospitals(context.Background())
	if err != nil {
		t.Fatalf("ListHospitals: %v", err)
	}
	if len(hs) != 3 || hs[1].CCN == nil || *hs[1].CCN != "330002" || hs[0].State != "NY" {
		t.Errorf("hospitals: %+v", hs)
	}
	if len(queries) != 2 || !strings.Contains(queries[1], "entity_id > 'B'") {
		t.Errorf("queries: %v", queries)
	}
}

func TestHTTPSource_LargeRowKeysStayExact(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"query_execution_status":"Success","rows":[
			{"entity_id":"H1","row_key":9007199254740993,"ms_drg_code":"470"},
			{"entity_id":"H1","row_key":"9007199254740995","ms_drg_code":"470"}]}`))
	}))
	defer srv.Close()

	s := NewHTTPSource(srv.URL, "", 10, time.Second)
	rows, err := s.FetchPage(context.Background(), PageRequest{EntityID: "H1", Limit: 10})
	if err != nil {
		t.Fatalf("FetchPage: %v", err)
	}
	if len(rows) != 2 || rows[0].RowKey != 9007199254740993 || rows[1].RowKey != 9007199254740995 {
		t.Fatalf("row keys lost precision: %+v", rows)
	}
}

func TestHTTPSource_FractionalRowKeyRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"query_execution_status":"Success","rows":[{"entity_id":"H1","row_key":1.5}]}`))
	}))
	defer srv.Close()

	s := NewHTTPSource(srv.URL, "", 10, time.Second)
	if _, err := s.FetchPage(context.Background(), PageRequest{EntityID: "H1", Limit: 10}); err == nil {
		t.Fatal("expected error for a non-integer row_key")
	}
}
