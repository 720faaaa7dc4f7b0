package daemon

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	apperrors "github.com/Aman-CERP/pagemind/internal/errors"
	"github.com/Aman-CERP/pagemind/internal/export"
	"github.com/Aman-CERP/pagemind/internal/scanner"
	"github.com/Aman-CERP/pagemind/internal/service"
)

// HandlerFunc serves one method. params is the raw request payload and may
// be empty.
type HandlerFunc func(ctx context.Context, params json.RawMessage) (Reply, error)

// Handlers maps every method to its service call.
func Handlers(svc *service.Service) map[Method]HandlerFunc {
	return map[Method]HandlerFunc{
		MethodPing: func(context.Context, json.RawMessage) (Reply, error) {
			return Reply{Type: TypePong}, nil
		},
		MethodGetStatus: func(ctx context.Context, _ json.RawMessage) (Reply, error) {
			rep, err := svc.Status(ctx)
			return Reply{Type: TypeStatus, Payload: rep}, err
		},
		MethodGetStats: func(ctx context.Context, _ json.RawMessage) (Reply, error) {
			st, err := svc.Stats(ctx)
			return Reply{Type: TypeStats, Payload: st}, err
		},
		MethodStartScan:    startScan(svc),
		MethodRunAnalysis:  runAnalysis(svc),
		MethodGetJob:       getJob(svc),
		MethodAskQuery:     askQuery(svc),
		MethodSearch:       searchRecords(svc),
		MethodGetSettings:  getSettings(svc),
		MethodSaveSettings: saveSettings(svc),
		MethodExportJSONL:  exportAs(svc, export.FormatJSONL),
		MethodExportTXT:    exportAs(svc, export.FormatTXT),
		MethodGetLogs: func(context.Context, json.RawMessage) (Reply, error) {
			return Reply{Type: TypeLogs, Payload: svc.Logs()}, nil
		},
		MethodClearLogs: func(context.Context, json.RawMessage) (Reply, error) {
			svc.ClearLogs()
			return Reply{Type: TypeLogsCleared}, nil
		},
		MethodRequeue: requeue(svc),
		MethodQueryStats: func(context.Context, json.RawMessage) (Reply, error) {
			return Reply{Type: TypeQueryStats, Payload: svc.QueryStats()}, nil
		},
	}
}

func startScan(svc *service.Service) HandlerFunc {
	return func(ctx context.Context, raw json.RawMessage) (Reply, error) {
		p, err := decodeParams[ScanParams](raw)
		if err != nil {
			return Reply{}, err
		}

		var results []scanner.Result
		if src, ok := p.Source(); ok {
			res, err := svc.Scan(ctx, src)
			if err != nil {
				return Reply{}, err
			}
			results = append(results, res)
		} else {
			results, err = svc.ScanAll(ctx)
			if err != nil && len(results) == 0 {
				return Reply{}, err
			}
		}

		out := ScanReply{Scans: make([]ScanSummary, 0, len(results))}
		for _, r := range results {
			out.Scans = append(out.Scans, ScanSummary(r))
		}
		if !p.NoAnalyze {
			job, err := svc.StartAnalysis()
			if err != nil {
				return Reply{}, err
			}
			out.JobID = job.ID
		}
		return Reply{Type: TypeScanStarted, Payload: out}, nil
	}
}

func runAnalysis(svc *service.Service) HandlerFunc {
	return func(ctx context.Context, raw json.RawMessage) (Reply, error) {
		p, err := decodeParams[AnalysisParams](raw)
		if err != nil {
			return Reply{}, err
		}
		if !p.Wait {
			job, err := svc.StartAnalysis()
			return Reply{Type: TypeJob, Payload: job}, err
		}

		run := svc.Analyze
		if p.Rerun {
			run = svc.Reanalyze
		}
		res, err := run(ctx)
		return Reply{Type: TypeAnalysisDone, Payload: res}, err
	}
}

func getJob(svc *service.Service) HandlerFunc {
	return func(_ context.Context, raw json.RawMessage) (Reply, error) {
		p, err := decodeParams[JobParams](raw)
		if err != nil {
			return Reply{}, err
		}
		job, ok := svc.Job(p.JobID)
		if !ok {
			return Reply{}, apperrors.New(apperrors.ErrCodeInvalidInput,
				fmt.Sprintf("unknown job %q", p.JobID), nil)
		}
		return Reply{Type: TypeJob, Payload: job}, nil
	}
}

func askQuery(svc *service.Service) HandlerFunc {
	return func(ctx context.Context, raw json.RawMessage) (Reply, error) {
		p, err := decodeParams[AskParams](raw)
		if err != nil {
			return Reply{}, err
		}
		res, err := svc.Ask(ctx, p.Question)
		if err != nil {
			return Reply{}, err
		}
		return Reply{Type: TypeAnswer, Payload: res}, nil
	}
}

func searchRecords(svc *service.Service) HandlerFunc {
	return func(ctx context.Context, raw json.RawMessage) (Reply, error) {
		p, err := decodeParams[SearchParams](raw)
		if err != nil {
			return Reply{}, err
		}
		hits, err := svc.Search(ctx, p.Query, p.TopK)
		if err != nil {
			return Reply{}, err
		}
		return Reply{Type: TypeSearchResults, Payload: hits}, nil
	}
}

func getSettings(svc *service.Service) HandlerFunc {
	return func(ctx context.Context, _ json.RawMessage) (Reply, error) {
		s, err := svc.Settings(ctx)
		if err != nil {
			return Reply{}, err
		}
		return Reply{Type: TypeSettings, Payload: SettingsReply{Settings: s, Missing: nonNil(s.Missing())}}, nil
	}
}

func saveSettings(svc *service.Service) HandlerFunc {
	return func(ctx context.Context, raw json.RawMessage) (Reply, error) {
		if len(bytes.TrimSpace(raw)) == 0 {
			return Reply{}, apperrors.New(apperrors.ErrCodeInvalidInput, "settings payload is required", nil)
		}
		s, err := svc.Settings(ctx)
		if err != nil {
			return Reply{}, err
		}
		// Fields absent from the payload keep their current values.
		if err := json.Unmarshal(raw, &s); err != nil {
			return Reply{}, invalidParams(err)
		}
		if err := svc.SaveSettings(ctx, s); err != nil {
			return Reply{}, err
		}
		return Reply{Type: TypeSettingsSaved, Payload: SettingsReply{Settings: s.Redacted(), Missing: nonNil(s.Missing())}}, nil
	}
}

func exportAs(svc *service.Service, format export.Format) HandlerFunc {
	return func(ctx context.Context, _ json.RawMessage) (Reply, error) {
		res, err := svc.Export(ctx, format)
		if err != nil {
			return Reply{}, err
		}
		return Reply{Type: TypeExportReady, Payload: ExportReply{Filename: res.Filename, Path: res.Path, Rows: res.Rows}}, nil
	}
}

func requeue(svc *service.Service) HandlerFunc {
	return func(ctx context.Context, raw json.RawMessage) (Reply, error) {
		p, err := decodeParams[RequeueParams](raw)
		if err != nil {
			return Reply{}, err
		}
		n, err := svc.Requeue(ctx, p.Restricted)
		if err != nil {
			return Reply{}, err
		}
		return Reply{Type: TypeRequeued, Payload: RequeueReply{Requeued: n}}, nil
	}
}

// decodeParams decodes raw into T. Empty params decode to the zero value.
func decodeParams[T any](raw json.RawMessage) (T, error) {
	var v T
	if len(bytes.TrimSpace(raw)) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return v, nil
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return v, invalidParams(err)
	}
	return v, nil
}

func invalidParams(err error) error {
	return apperrors.New(apperrors.ErrCodeInvalidInput, "invalid params: "+err.Error(), err)
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
