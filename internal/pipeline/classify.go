package pipeline

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strings"

	apperrors "github.com/Aman-CERP/pagemind/internal/errors"
	"github.com/Aman-CERP/pagemind/internal/fetch"
	"github.com/Aman-CERP/pagemind/internal/llm"
	"github.com/Aman-CERP/pagemind/internal/store"
)

// MaxErrorLength caps stored error messages, in runes.
const MaxErrorLength = 500

// ClassifyFetch maps an unsuccessful fetch result to a terminal status.
// HTTP 401 and 403 are restricted, everything else failed.
func ClassifyFetch(res *fetch.Result) store.Status {
	if res != nil && isAuthStatus(res.HTTPStatus) {
		return store.StatusRestricted
	}
	return store.StatusFailed
}

// ClassifyError maps a processing error to a terminal status.
//
// An HTTP status carried by llm.StatusError decides on its own, as do the
// restricted codes ERR_204 and ERR_303. Every other error, coded or not,
// goes through the text rule: restricted when the message contains "401",
// "403" or "forbidden" in any case, failed otherwise.
func ClassifyError(err error) store.Status {
	if err == nil {
		return store.StatusFailed
	}

	var se *llm.StatusError
	if errors.As(err, &se) {
		if isAuthStatus(se.StatusCode) {
			return store.StatusRestricted
		}
		return store.StatusFailed
	}

	switch apperrors.GetCode(err) {
	case apperrors.ErrCodeFetchRestricted, apperrors.ErrCodeLLMAuth:
		return store.StatusRestricted
	}
	return ClassifyMessage(apperrors.UserMessage(err))
}

// ClassifyMessage applies the text rule used for unstructured errors.
func ClassifyMessage(msg string) store.Status {
	if strings.Contains(msg, "401") || strings.Contains(msg, "403") ||
		strings.Contains(strings.ToLower(msg), "forbidden") {
		return store.StatusRestricted
	}
	return store.StatusFailed
}

// FetchFailureMessage describes a non-2xx fetch.
func FetchFailureMessage(res *fetch.Result, url string) string {
	if res.FinalURL != "" {
		url = res.FinalURL
	}
	return fmt.Sprintf("HTTP %d from %s", res.HTTPStatus, url)
}

// TruncateError shortens msg to MaxErrorLength runes.
func TruncateError(msg string) string {
	n := 0
	for i := range msg {
		if n == MaxErrorLength {
			return msg[:i]
		}
		n++
	}
	return msg
}

// ContentHash fingerprints processed text as "sha256:<hex>".
func ContentHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return "sha256:" + hex.EncodeToString(sum[:])
}

func isAuthStatus(code int) bool {
	return code == http.StatusUnauthorized || code == http.StatusForbidden
}
