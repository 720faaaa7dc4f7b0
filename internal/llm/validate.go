package llm

import (
	"encoding/json"
	"fmt"
	"math"

	apperrors "github.com/Aman-CERP/pagemind/internal/errors"
)

// ParseSummary validates a summary response. Every field is required and
// must have the expected JSON type.
func ParseSummary(content string) (*SummaryResult, error) {
	obj, err := parseObject(content)
	if err != nil {
		return nil, err
	}

	out := &SummaryResult{}
	if out.SummaryShort, err = stringField(obj, "summary_short"); err != nil {
		return nil, err
	}
	if out.SummaryDetailed, err = stringField(obj, "summary_detailed"); err != nil {
		return nil, err
	}
	if out.WhyRelevant, err = stringField(obj, "why_relevant"); err != nil {
		return nil, err
	}
	if out.Tags, err = stringArrayField(obj, "tags"); err != nil {
		return nil, err
	}
	if out.Topics, err = stringArrayField(obj, "topics"); err != nil {
		return nil, err
	}
	if out.Confidence, err = numberField(obj, "confidence"); err != nil {
		return nil, err
	}
	return out, nil
}

// ParseAnswer validates an answer response.
func ParseAnswer(content string) (*AnswerResult, error) {
	obj, err := parseObject(content)
	if err != nil {
		return nil, err
	}

	out := &AnswerResult{}
	if out.Answer, err = stringField(obj, "answer"); err != nil {
		return nil, err
	}
	if out.Confidence, err = numberField(obj, "confidence"); err != nil {
		return nil, err
	}
	if out.MatchedURLs, err = urlReasonField(obj, "matched_urls"); err != nil {
		return nil, err
	}
	if out.RelatedURLs, err = urlReasonField(obj, "related_urls"); err != nil {
		return nil, err
	}
	return out, nil
}

func invalid(msg string, cause error) error {
	return apperrors.New(apperrors.ErrCodeLLMInvalid, msg, cause)
}

func parseObject(content string) (map[string]any, error) {
	var v any
	if err := json.Unmarshal([]byte(content), &v); err != nil {
		return nil, invalid("LLM response is not valid JSON", err)
	}
	return asObject(v)
}

func asObject(v any) (map[string]any, error) {
	obj, ok := v.(map[string]any)
	if !ok || obj == nil {
		return nil, invalid("LLM response is not an object", nil)
	}
	return obj, nil
}

func stringField(obj map[string]any, key string) (string, error) {
	s, ok := obj[key].(string)
	if !ok {
		return "", invalid("Invalid "+key, nil)
	}
	return s, nil
}

func numberField(obj map[string]any, key string) (float64, error) {
	n, ok := obj[key].(float64)
	if !ok || math.IsNaN(n) || math.IsInf(n, 0) {
		return 0, invalid("Invalid "+key, nil)
	}
	return n, nil
}

func stringArrayField(obj map[string]any, key string) ([]string, error) {
	arr, ok := obj[key].([]any)
	if !ok {
		return nil, invalid("Invalid "+key, nil)
	}
	out := make([]string, 0, len(arr))
	for _, item := range arr {
		s, ok := item.(string)
		if !ok {
			return nil, invalid("Invalid "+key, nil)
		}
		out = append(out, s)
	}
	return out, nil
}

func urlReasonField(obj map[string]any, key string) ([]URLReason, error) {
	arr, ok := obj[key].([]any)
	if !ok {
		return nil, invalid("Invalid "+key, nil)
	}
	out := make([]URLReason, 0, len(arr))
	for _, item := range arr {
		entry, err := asObject(item)
		if err != nil {
			return nil, err
		}
		u, ok := entry["url"].(string)
		if !ok {
			return nil, invalid(fmt.Sprintf("Invalid %s.url", key), nil)
		}
		r, ok := entry["reason"].(string)
		if !ok {
			return nil, invalid(fmt.Sprintf("Invalid %s.reason", key), nil)
		}
		out = append(out, URLReason{URL: u, Reason: r})
	}
	return out, nil
}
