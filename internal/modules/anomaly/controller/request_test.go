package controller

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"weather-anomaly-server/internal/modules/anomaly/service"
)

func Test_decodeDetectRequest(t *testing.T) {
	t.Run("zero values are present values", func(t *testing.T) {
		body := `{"observations":[{"station_id":"","timestamp":0,"temp_out":0,"out_hum":0,"wind_speed":0,"bar":0,"rain":0}],"threshold":1}`
		req := httptest.NewRequest(http.MethodPost, "/detect", strings.NewReader(body))

		got, err := decodeDetectRequest(httptest.NewRecorder(), req)
		if err != nil {
			t.Fatalf("decodeDetectRequest() err = %v; want nil", err)
		}
		if len(got.Observations) != 1 {
			t.Fatalf("len(Observations) = %d; want 1", len(got.Observations))
		}
		if got.Parameters.Threshold != 1 || got.Parameters.WindowLen != 60 || got.Parameters.Stride != 18 {
			t.Errorf("Parameters = %+v", got.Parameters)
		}
	})

	t.Run("first missing field is reported", func(t *testing.T) {
		body := `{"observations":[` +
			`{"station_id":"A","timestamp":1,"temp_out":1,"out_hum":1,"wind_speed":1,"bar":1,"rain":0},` +
			`{"station_id":"A","temp_out":1}` +
			`]}`
		req := httptest.NewRequest(http.MethodPost, "/detect", strings.NewReader(body))

		_, err := decodeDetectRequest(httptest.NewRecorder(), req)
		var ve *service.ValidationError
		if !errors.As(err, &ve) {
			t.Fatalf("err = %v; want *ValidationError", err)
		}
		if ve.Kind != service.KindUnprocessable || ve.Message != "observations[1].timestamp: field required" {
			t.Errorf("err = %+v", ve)
		}
	})

	t.Run("body too large", func(t *testing.T) {
		body := `{"observations":[` + strings.Repeat(" ", maxBodyBytes) + `]}`
		req := httptest.NewRequest(http.MethodPost, "/detect", strings.NewReader(body))

		_, err := decodeDetectRequest(httptest.NewRecorder(), req)
		var ve *service.ValidationError
		if !errors.As(err, &ve) || ve.Kind != service.KindBadRequest {
			t.Errorf("err = %v; want bad request", err)
		}
	})
}

func Test_parseListQuery(t *testing.T) {
	tests := []struct {
		query   string
		want    int
		wantErr bool
	}{
		{query: "", want: defaultListLimit},
		{query: "?limit=1", want: 1},
		{query: "?limit=100", want: 100},
		{query: "?limit=0", wantErr: true},
		{query: "?limit=101", wantErr: true},
		{query: "?limit=ten", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/detections"+tt.query, nil)
			got, err := parseListQuery(req)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("parseListQuery() err = nil; want error")
				}
				return
			}
			if err != nil {
				t.Fatalf("parseListQuery() err = %v; want nil", err)
			}
			if got != tt.want {
				t.Errorf("limit = %d; want %d", got, tt.want)
			}
		})
	}
}
