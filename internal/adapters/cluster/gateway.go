package cluster

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/molcalc/chemjobs/internal/core"
	domain "github.com/molcalc/chemjobs/internal/domain/cluster"
	"github.com/molcalc/chemjobs/internal/observability/metrics"
	"github.com/molcalc/chemjobs/internal/observability/statsd"
)

// DefaultTimeout bounds a single gateway call.
const DefaultTimeout = 2 * time.Minute

// Encoding selects how the envelope and the response are framed on the transport.
type Encoding string

const (
	// EncodingJSON sends and receives raw JSON.
	EncodingJSON Encoding = "json"
	// EncodingBase64 wraps both directions in standard base64. Older entrypoints use it.
	EncodingBase64 Encoding = "base64"
)

// GatewayOptions configures a Gateway.
type GatewayOptions struct {
	Transport Transport
	Timeout   time.Duration
	// RateLimit caps calls per second across all actions. Zero disables limiting.
	RateLimit float64
	Burst     int
	Selector  *ReportSelector
	Encoding  Encoding
	Logger    *slog.Logger
	Metrics   statsd.Sink
}

// Gateway implements core.ClusterGateway over a Transport.
type Gateway struct {
	transport Transport
	timeout   time.Duration
	limiter   *rate.Limiter
	selector  *ReportSelector
	encoding  Encoding
	logger    *slog.Logger
	metrics   statsd.Sink
}

var _ core.ClusterGateway = (*Gateway)(nil)

// NewGateway validates opts and returns a Gateway.
func NewGateway(opts GatewayOptions) (*Gateway, error) {
	if opts.Transport == nil {
		return nil, errors.New("cluster gateway: transport is required")
	}
	g := &Gateway{
		transport: opts.Transport,
		timeout:   opts.Timeout,
		selector:  opts.Selector,
		encoding:  opts.Encoding,
		logger:    opts.Logger,
		metrics:   opts.Metrics,
	}
	if g.timeout <= 0 {
		g.timeout = DefaultTimeout
	}
	switch g.encoding {
	case "":
		g.encoding = EncodingJSON
	case EncodingJSON, EncodingBase64:
	default:
		return nil, fmt.Errorf("cluster gateway: unknown encoding %q", opts.Encoding)
	}
	if opts.RateLimit > 0 {
		burst := opts.Burst
		if burst <= 0 {
			burst = 1
		}
		g.limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), burst)
	}
	if g.logger == nil {
		g.logger = slog.Default()
	}
	g.logger = g.logger.With("component", "cluster_gateway", "transport", opts.Transport.Name())
	if g.metrics == nil {
		g.metrics = statsd.Nop{}
	}
	return g, nil
}

// Submit hands a new job to the cluster.
func (g *Gateway) Submit(ctx context.Context, req domain.SubmitRequest) (domain.Ack, error) {
	var ack domain.Ack
	err := g.call(ctx, domain.ActionSubmit, req, &ack)
	return ack, err
}

// Cancel asks the cluster to stop a job.
func (g *Gateway) Cancel(ctx context.Context, req domain.CancelRequest) (domain.Ack, error) {
	var ack domain.Ack
	err := g.call(ctx, domain.ActionCancel, req, &ack)
	return ack, err
}

// Check sends the reconciliation batch and returns the entries whose state changed.
func (g *Gateway) Check(ctx context.Context, req domain.CheckRequest) (domain.CheckReport, error) {
	if req == nil {
		req = domain.CheckRequest{}
	}
	var report domain.CheckReport
	if err := g.call(ctx, domain.ActionCheck, req, &report); err != nil {
		return nil, err
	}
	if report == nil {
		report = domain.CheckReport{}
	}
	return report, nil
}

// Upload instructs the cluster to push one artifact with a presigned credential.
func (g *Gateway) Upload(ctx context.Context, req domain.UploadRequest) (domain.UploadResult, error) {
	if !req.Credential.Valid() {
		return domain.UploadResult{}, errors.New("upload credential is required")
	}
	var res domain.UploadResult
	err := g.call(ctx, domain.ActionUpload, req, &res)
	return res, err
}

// Clean releases remote scratch space for a job.
func (g *Gateway) Clean(ctx context.Context, req domain.CleanRequest) (domain.Ack, error) {
	var ack domain.Ack
	err := g.call(ctx, domain.ActionClean, req, &ack)
	return ack, err
}

func (g *Gateway) call(ctx context.Context, action domain.Action, params, out any) (err error) {
	start := time.Now()
	defer func() {
		metrics.Emit(g.metrics, metrics.Observation{
			Name:     metrics.ClusterCall,
			Timer:    metrics.ClusterCallTimer,
			Result:   metrics.ResultFor(err),
			Duration: time.Since(start),
			Err:      err,
			Tags:     map[string]string{"action": string(action)},
		})
		if err != nil {
			g.logger.WarnContext(ctx, "cluster call failed", "action", action, "error", err)
		}
	}()

	env, err := domain.NewEnvelope(action, params)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal %s envelope: %w", action, err)
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("%w: %s rate limit wait: %w", ErrTransport, action, err)
		}
	}

	raw, err := g.transport.Call(ctx, g.encode(payload))
	if err != nil {
		if !errors.Is(err, ErrTransport) {
			err = fmt.Errorf("%w: %w", ErrTransport, err)
		}
		return fmt.Errorf("%s: %w", action, err)
	}

	body, err := g.decode(raw)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrDecode, action, err)
	}
	if action == domain.ActionCheck {
		if body, err = g.selector.Select(body); err != nil {
			return fmt.Errorf("%w: %s: %w", ErrDecode, action, err)
		}
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrDecode, action, err)
	}
	g.logger.DebugContext(ctx, "cluster call complete", "action", action, "duration", time.Since(start))
	return nil
}

func (g *Gateway) encode(payload []byte) []byte {
	if g.encoding != EncodingBase64 {
		return payload
	}
	out := make([]byte, base64.StdEncoding.EncodedLen(len(payload)))
	base64.StdEncoding.Encode(out, payload)
	return out
}

func (g *Gateway) decode(raw []byte) ([]byte, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil, errors.New("empty response")
	}
	if g.encoding != EncodingBase64 {
		return raw, nil
	}
	out := make([]byte, base64.StdEncoding.DecodedLen(len(raw)))
	n, err := base64.StdEncoding.Decode(out, raw)
	if err != nil {
		return nil, fmt.Errorf("base64: %w", err)
	}
	return out[:n], nil
}
