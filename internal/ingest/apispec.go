package ingest

import (
	"encoding/json"
	"fmt"

	"github.com/ohler55/ojg/jp"
	"github.com/ohler55/ojg/oj"
)

// ApiSpec is the descriptor stored in the apispecs collection.
type ApiSpec struct {
	Name        string `json:"name"`
	SpecURL     string `json:"specUrl"`
	Version     string `json:"version,omitempty"`
	BaseURL     string `json:"baseUrl,omitempty"`
	Description string `json:"description,omitempty"`
}

var (
	pathName        = jp.MustParseString("$.name")
	pathSpecURL     = jp.MustParseString("$.specUrl")
	pathVersion     = jp.MustParseString("$.version")
	pathBaseURL     = jp.MustParseString("$.baseUrl")
	pathDescription = jp.MustParseString("$.description")

	pathInfoTitle   = jp.MustParseString("$.info.title")
	pathInfoVersion = jp.MustParseString("$.info.version")
)

// DecodeApiSpec parses a stored record. Missing or non-string fields are
// left empty; only malformed JSON is an error.
func DecodeApiSpec(content string) (ApiSpec, error) {
	doc, err := oj.ParseString(content)
	if err != nil {
		return ApiSpec{}, fmt.Errorf("decode api spec: %w", err)
	}

	if _, ok := doc.(map[string]any); !ok {
		return ApiSpec{}, fmt.Errorf("decode api spec: want object, got %T", doc)
	}

	return ApiSpec{
		Name:        firstString(pathName, doc),
		SpecURL:     firstString(pathSpecURL, doc),
		Version:     firstString(pathVersion, doc),
		BaseURL:     firstString(pathBaseURL, doc),
		Description: firstString(pathDescription, doc),
	}, nil
}

// Encode returns the JSON stored as record content.
func (s ApiSpec) Encode() (string, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return "", fmt.Errorf("encode api spec: %w", err)
	}

	return string(data), nil
}

// specSummary extracts the info block of an OpenAPI document for logging.
// Both values are empty for documents without one.
func specSummary(doc any) (title, version string) {
	return firstString(pathInfoTitle, doc), firstString(pathInfoVersion, doc)
}

func firstString(path jp.Expr, doc any) string {
	s, _ := path.First(doc).(string)

	return s
}
