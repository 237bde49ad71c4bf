package browser

import (
	"net/http"
	"testing"
)

func TestMatchOption(t *testing.T) {
	options := []option{
		{Value: "", Text: "-- Pilih Mahasiswa --"},
		{Value: "901", Text: "Budi Santoso (21012345)"},
		{Value: "902", Text: "Budi Santosa (21099999)"},
		{Value: "903", Text: "SITI AMINAH (21054321)"},
	}

	cases := []struct {
		query string
		want  string
		ok    bool
	}{
		{"Budi Santoso", "901", true},
		{"budi", "901", true}, // primeira que casa vence
		{"siti aminah", "903", true},
		{"21099999", "902", true},
		{"Pilih", "", false}, // placeholder sem valor
		{"Ayu", "", false},
		{"  ", "", false},
	}
	for _, c := range cases {
		got, ok := matchOption(options, c.query)
		if got != c.want || ok != c.ok {
			t.Errorf("matchOption(%q) = (%q, %v), esperado (%q, %v)", c.query, got, ok, c.want, c.ok)
		}
	}
}

func TestCookieParams(t *testing.T) {
	cookies := []*http.Cookie{
		{Name: "simasterUGM", Value: "sess-1", HttpOnly: true},
		{Name: "ci_session", Value: "abc", Path: "/kkn"},
		{Name: "", Value: "ignorado"},
		nil,
	}

	params, err := cookieParams(cookies, "https://simaster.ugm.ac.id/kkn/presensi/unit")
	if err != nil {
		t.Fatalf("cookieParams falhou: %v", err)
	}
	if len(params) != 2 {
		t.Fatalf("esperava 2 cookies, veio %d", len(params))
	}

	first := params[0]
	if first.Name != "simasterUGM" || first.Value != "sess-1" || first.URL != "https://simaster.ugm.ac.id" {
		t.Errorf("cookie convertido errado: %+v", first)
	}
	if first.Path != "/" || !first.Secure || !first.HTTPOnly {
		t.Errorf("atributos do cookie errados: %+v", first)
	}
	if params[1].Path != "/kkn" {
		t.Errorf("path original deveria ser mantido: %+v", params[1])
	}
}

func TestCookieParamsInvalidURL(t *testing.T) {
	if _, err := cookieParams(nil, "://sem-esquema"); err == nil {
		t.Errorf("esperava erro para url inválida")
	}
}
