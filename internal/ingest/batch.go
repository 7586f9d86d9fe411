package ingest

import (
	"context"
	"time"

	"github.com/roach88/yatra/internal/checkpoint"
)

// BatchItem is the outcome for one token of a batch.
type BatchItem struct {
	Token  string  `json:"token"`
	Result *Result `json:"result,omitempty"`
	Error  string  `json:"error,omitempty"`
}

// BatchResult summarizes a continuous-scan batch.
type BatchResult struct {
	Total      int         `json:"total"`
	Successful int         `json:"successful"`
	Duplicates int         `json:"duplicates"`
	Errors     int         `json:"errors"`
	Results    []BatchItem `json:"results"`
}

// BatchScan records tokens in order at checkpointID. Unknown tokens are
// counted as errors and skipped. A local persistence failure stops the batch
// and is returned with the results gathered so far.
func (in *Ingester) BatchScan(ctx context.Context, tokens []string, checkpointID checkpoint.ID, now time.Time) (BatchResult, error) {
	out := BatchResult{Total: len(tokens), Results: make([]BatchItem, 0, len(tokens))}

	for _, tok := range tokens {
		if err := ctx.Err(); err != nil {
			return out, err
		}

		res, err := in.ScanToken(ctx, tok, checkpointID, now)
		item := BatchItem{Token: tok}
		switch {
		case err == nil:
			item.Result = &res
			if res.Duplicate {
				out.Duplicates++
			} else {
				out.Successful++
			}
		case IsLocalPersistence(err):
			out.Errors++
			item.Error = err.Error()
			out.Results = append(out.Results, item)
			return out, err
		default:
			out.Errors++
			item.Error = err.Error()
		}
		out.Results = append(out.Results, item)
	}
	return out, nil
}
