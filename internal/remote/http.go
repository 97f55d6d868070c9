package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gyeh/pricepanel/internal/model"
	"github.com/gyeh/pricepanel/internal/normalize"
)

// HTTPSource queries a SQL-over-HTTP API: GET <base>?q=<sql> returning
// {"query_execution_status": "Success", "rows": [{column: value}]}.
type HTTPSource struct {
	BaseURL        string
	Token          string
	ChargesTable   string
	HospitalsTable string
	PageSize       int
	Client         *http.Client
}

// NewHTTPSource creates an HTTP source with a per-request timeout.
func NewHTTPSource(baseURL, token string, pageSize int, timeout time.Duration) *HTTPSource {
	return &HTTPSource{
		BaseURL:        baseURL,
		Token:          token,
		ChargesTable:   "charges",
		HospitalsTable: "hospitals",
		PageSize:       pageSize,
		Client:         &http.Client{Timeout: timeout},
	}
}

type apiResponse struct {
	Status  string           `json:"query_execution_status"`
	Message string           `json:"query_execution_message"`
	Rows    []map[string]any `json:"rows"`
}

// Query runs one SQL statement and returns its rows.
func (s *HTTPSource) Query(ctx context.Context, sql string) ([]map[string]any, error) {
	u, err := url.Parse(s.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	q := u.Query()
	q.Set("q", sql)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if s.Token != "" {
		req.Header.Set("Authorization", "Bearer "+s.Token)
	}

	resp, err := s.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: truncate(string(body), 200)}
	}

	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var out apiResponse
	if err := dec.Decode(&out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if out.Status != "" && !strings.EqualFold(out.Status, "Success") {
		return nil, &QueryError{Status: out.Status, Message: out.Message}
	}
	return out.Rows, nil
}

// FetchPage issues one keyset-paginated query for an entity.
func (s *HTTPSource) FetchPage(ctx context.Context, req PageRequest) ([]model.RawChargeRow, error) {
	rows, err := s.Query(ctx, BuildPageSQL(s.ChargesTable, req))
	if err != nil {
		return nil, err
	}
	out := make([]model.RawChargeRow, 0, len(rows))
	for i, m := range rows {
		r, err := chargeRowFromMap(m)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		out = append(out, r)
	}
	return out, nil
}

// ListHospitals pages through the hospital table ordered by entity_id.
func (s *HTTPSource) ListHospitals(ctx context.Context) ([]model.Hospital, error) {
	var out []model.Hospital
	after := ""
	for {
		rows, err := s.Query(ctx, BuildHospitalsSQL(s.HospitalsTable, after, s.PageSize))
		if err != nil {
			return nil, err
		}
		for _, m := range rows {
			out = append(out, hospitalFromMap(m))
		}
		if len(rows) < s.PageSize || len(rows) == 0 {
			return out, nil
		}
		last := out[len(out)-1].EntityID
		if last <= after {
			return nil, fmt.Errorf("hospital keyset did not advance past %q", after)
		}
		after = last
	}
}

var chargeColumns = []string{
	"entity_id", "row_key", "description", "setting", "billing_class",
	"ms_drg_code", "cpt_code", "hcpcs_code", "payer_name", "plan_name",
	"negotiated_dollar", "gross_charge", "discounted_cash", "min_charge", "max_charge",
}

// BuildPageSQL renders the keyset page query. Code lists become IN
// predicates OR'ed together; an empty list is left out.
func BuildPageSQL(table string, req PageRequest) string {
	var b strings.Builder
	b.WriteString("SELECT ")
	b.WriteString(strings.Join(chargeColumns, ", "))
	fmt.Fprintf(&b, " FROM `%s` WHERE entity_id = %s AND row_key > %d", table, quote(req.EntityID), req.AfterKey)

	var preds []string
	if len(req.DRGCodes) > 0 {
		preds = append(preds, "ms_drg_code IN ("+quoteList(req.DRGCodes)+")")
	}
	if len(req.ProcedureCodes) > 0 {
		list := quoteList(req.ProcedureCodes)
		preds = append(preds, "cpt_code IN ("+list+")", "hcpcs_code IN ("+list+")")
	}
	if len(preds) > 0 {
		b.WriteString(" AND (" + strings.Join(preds, " OR ") + ")")
	}
	fmt.Fprintf(&b, " ORDER BY row_key LIMIT %d", req.Limit)
	return b.String()
}

// BuildHospitalsSQL renders one page of the hospital listing.
func BuildHospitalsSQL(table, after string, limit int) string {
	return fmt.Sprintf("SELECT entity_id, name, address, city, state, tax_id, ccn, aha_id, system_id FROM `%s` WHERE entity_id > %s ORDER BY entity_id LIMIT %d",
		table, quote(after), limit)
}

func quote(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

func quoteList(vals []string) string {
	q := make([]string, len(vals))
	for i, v := range vals {
		q[i] = quote(v)
	}
	return strings.Join(q, ", ")
}

func chargeRowFromMap(m map[string]any) (model.RawChargeRow, error) {
	r := model.RawChargeRow{
		EntityID:     normalize.Deref(str(m["entity_id"])),
		Description:  normalize.Deref(str(m["description"])),
		Setting:      str(m["setting"]),
		BillingClass: str(m["billing_class"]),
		MSDRGCode:    str(m["ms_drg_code"]),
		CPTCode:      str(m["cpt_code"]),
		HCPCSCode:    str(m["hcpcs_code"]),
		PayerName:    str(m["payer_name"]),
		PlanName:     str(m["plan_name"]),
	}
	if r.EntityID == "" {
		return r, fmt.Errorf("missing entity_id")
	}
	key, err := intKey(m["row_key"])
	if err != nil {
		return r, fmt.Errorf("bad row_key %v: %w", m["row_key"], err)
	}
	r.RowKey = key

	amounts := []struct {
		col string
		dst **float64
	}{
		{"negotiated_dollar", &r.NegotiatedDollar},
		{"gross_charge", &r.GrossCharge},
		{"discounted_cash", &r.DiscountedCash},
		{"min_charge", &r.MinCharge},
		{"max_charge", &r.MaxCharge},
	}
	for _, a := range amounts {
		v, err := num(m[a.col])
		if err != nil {
			return r, fmt.Errorf("%s: %w", a.col, err)
		}
		*a.dst = v
	}
	return r, nil
}

func hospitalFromMap(m map[string]any) model.Hospital {
	return model.Hospital{
		EntityID: normalize.Deref(str(m["entity_id"])),
		Name:     normalize.Deref(str(m["name"])),
		Address:  normalize.Deref(str(m["address"])),
		City:     normalize.Deref(str(m["city"])),
		State:    normalize.Deref(str(m["state"])),
		TaxID:    str(m["tax_id"]),
		CCN:      str(m["ccn"]),
		AHAID:    str(m["aha_id"]),
		SystemID: str(m["system_id"]),
	}
}

// str converts a JSON value to an optional string; numbers keep their
// literal text so codes like 0470 are not reformatted.
func str(v any) *string {
	switch t := v.(type) {
	case nil:
		return nil
	case string:
		if t == "" {
			return nil
		}
		return &t
	case json.Number:
		s := t.String()
		return &s
	case bool:
		s := strconv.FormatBool(t)
		return &s
	default:
		s := fmt.Sprint(t)
		return &s
	}
}

// num converts a JSON number or numeric string to an optional float.
func num(v any) (*float64, error) {
	var s string
	switch t := v.(type) {
	case nil:
		return nil, nil
	case json.Number:
		s = t.String()
	case string:
		s = strings.TrimSpace(t)
		if s == "" {
			return nil, nil
		}
	case float64:
		return &t, nil
	default:
		return nil, fmt.Errorf("unexpected numeric value %v", v)
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, err
	}
	return &f, nil
}

// intKey parses a row key without a float round trip, so keys above 2^53
// stay exact.
func intKey(v any) (int64, error) {
	var s string
	switch t := v.(type) {
	case json.Number:
		s = t.String()
	case string:
		s = strings.TrimSpace(t)
	case nil:
		return 0, fmt.Errorf("missing")
	default:
		return 0, fmt.Errorf("unexpected type %T", v)
	}
	return strconv.ParseInt(s, 10, 64)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
