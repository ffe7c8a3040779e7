package provider

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jonathan/purchase-tracker/internal/logging"
	"github.com/jonathan/purchase-tracker/internal/schemas"
	schemafiles "github.com/jonathan/purchase-tracker/schemas"
)

// DefaultCommandTimeout bounds one provider command run.
const DefaultCommandTimeout = 20 * time.Minute

// stderrTail is how many trailing stderr lines a CommandError keeps.
const stderrTail = 20

// CommandError reports a provider command that exited unsuccessfully.
type CommandError struct {
	Command  string
	ExitCode int
	Stderr   string
	Cause    error
}

func (e *CommandError) Error() string {
	msg := fmt.Sprintf("provider command %q failed", e.Command)
	if e.ExitCode > 0 {
		msg += fmt.Sprintf(" with exit code %d", e.ExitCode)
	}
	if e.Stderr != "" {
		msg += ": " + e.Stderr
	} else if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *CommandError) Unwrap() error {
	return e.Cause
}

// CommandProvider runs an external scraper that writes an order export to
// stdout and progress lines to stderr. Credentials are passed in the
// environment, never on the command line.
type CommandProvider struct {
	argv    []string
	timeout time.Duration
	schema  string
	log     *logging.Logger
}

// NewCommandProvider parses commandLine (space separated) into a provider.
func NewCommandProvider(commandLine string, timeout time.Duration, log *logging.Logger) (*CommandProvider, error) {
	argv := strings.Fields(commandLine)
	if len(argv) == 0 {
		return nil, fmt.Errorf("provider command is empty")
	}
	if timeout <= 0 {
		timeout = DefaultCommandTimeout
	}
	return &CommandProvider{
		argv:    argv,
		timeout: timeout,
		schema:  schemafiles.MustLoad(schemafiles.Orders),
		log:     logging.OrNop(log).With("component", "provider"),
	}, nil
}

// FetchOrders implements OrderProvider.
func (p *CommandProvider) FetchOrders(ctx context.Context, req FetchRequest, logf func(string)) ([]Order, error) {
	if !req.Credentials.Configured() {
		return nil, ErrNoCredentials
	}
	if logf == nil {
		logf = func(string) {}
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, p.argv[0], p.argv[1:]...)
	cmd.Env = append(os.Environ(),
		"PROVIDER_EMAIL="+req.Credentials.Email,
		"PROVIDER_PASSWORD="+req.Credentials.Password,
		"PROVIDER_OTP_SECRET="+req.Credentials.OTPSecret,
		"PROVIDER_DAYS="+strconv.Itoa(req.Days),
	)

	var stdout bytes.Buffer
	cmd.Stdout = &stdout
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, &CommandError{Command: p.argv[0], Cause: err}
	}

	p.log.Info("starting provider command", "command", p.argv[0], "user_id", req.UserID, "days", req.Days)
	if err := cmd.Start(); err != nil {
		return nil, &CommandError{Command: p.argv[0], Cause: err}
	}

	// stderr must be drained before Wait
	tail := relayLines(stderr, logf)

	if err := cmd.Wait(); err != nil {
		cerr := &CommandError{Command: p.argv[0], Stderr: strings.Join(tail, "\n"), Cause: err}
		if exitErr, ok := err.(*exec.ExitError); ok {
			cerr.ExitCode = exitErr.ExitCode()
		}
		if ctx.Err() != nil {
			cerr.Cause = ctx.Err()
		}
		return nil, cerr
	}

	return ParseOrders(p.schema, stdout.Bytes())
}

// maxLogLine caps a relayed stderr line; the rest of the line is dropped.
const maxLogLine = 4096

// relayLines forwards each line of r to logf and returns the last few. It
// reads r to EOF so the child never blocks on a full stderr pipe.
func relayLines(r io.Reader, logf func(string)) []string {
	var tail []string
	br := bufio.NewReader(r)
	for {
		raw, err := readLine(br, maxLogLine)
		if line := strings.TrimSpace(raw); line != "" {
			logf(line)
			tail = append(tail, line)
			if len(tail) > stderrTail {
				tail = tail[1:]
			}
		}
		if err != nil {
			if err != io.EOF {
				_, _ = io.Copy(io.Discard, r)
			}
			return tail
		}
	}
}

// readLine returns the next line of br, keeping at most limit bytes of it.
func readLine(br *bufio.Reader, limit int) (string, error) {
	var buf []byte
	truncated := false
	for {
		chunk, isPrefix, err := br.ReadLine()
		if room := limit - len(buf); room > 0 {
			if len(chunk) > room {
				chunk, truncated = chunk[:room], true
			}
			buf = append(buf, chunk...)
		} else if len(chunk) > 0 {
			truncated = true
		}
		if err != nil || !isPrefix {
			if truncated {
				buf = append(buf, " [truncated]"...)
			}
			return string(buf), err
		}
	}
}

type wireExport struct {
	Orders []wireOrder `json:"orders"`
}

type wireOrder struct {
	ID    string           `json:"order_id"`
	Date  string           `json:"order_date"`
	Total *decimal.Decimal `json:"total"`
	Items []wireItem       `json:"items"`
}

type wireItem struct {
	Title    string          `json:"title"`
	ASIN     *string         `json:"asin"`
	URL      *string         `json:"url"`
	Price    decimal.Decimal `json:"price"`
	Quantity int             `json:"quantity"`
}

// ParseOrders validates an order export against schema and converts it.
func ParseOrders(schema string, data []byte) ([]Order, error) {
	if err := schemas.ValidateDocument(schema, data); err != nil {
		return nil, fmt.Errorf("provider output rejected: %w", err)
	}

	var export wireExport
	if err := json.Unmarshal(data, &export); err != nil {
		return nil, fmt.Errorf("failed to decode provider output: %w", err)
	}

	orders := make([]Order, 0, len(export.Orders))
	for _, wo := range export.Orders {
		date, err := time.Parse(time.DateOnly, wo.Date)
		if err != nil {
			return nil, fmt.Errorf("order %s has invalid date %q: %w", wo.ID, wo.Date, err)
		}
		o := Order{ID: wo.ID, Date: date}
		if wo.Total != nil {
			o.Total = decimal.NewNullDecimal(*wo.Total)
		}
		for _, wi := range wo.Items {
			item := OrderItem{
				OrderID:  wo.ID,
				Title:    wi.Title,
				Price:    wi.Price,
				Quantity: wi.Quantity,
			}
			if item.Quantity == 0 {
				item.Quantity = 1
			}
			if wi.URL != nil {
				item.URL = *wi.URL
			}
			if wi.ASIN != nil {
				item.ASIN = *wi.ASIN
			} else {
				item.ASIN = ExtractASIN(item.URL)
			}
			if item.URL == "" && item.ASIN != "" {
				item.URL = "https://www.amazon.com/dp/" + item.ASIN
			}
			o.Items = append(o.Items, item)
		}
		orders = append(orders, o)
	}
	return orders, nil
}
