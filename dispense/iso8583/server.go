// Package iso8583 exposes the withdrawal engine to the ATM network as an
// ISO 8583 endpoint: 0200 financial requests for cash withdrawals and 0800
// network management messages.
package iso8583

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/moov-io/iso8583"
	"github.com/moov-io/iso8583/specs"
	connection "github.com/moov-io/iso8583-connection"
	iso8583Server "github.com/moov-io/iso8583-connection/server"
	"golang.org/x/exp/slog"

	"github.com/bankops/balance-dispense/dispense/models"
	"github.com/bankops/balance-dispense/internal/acctnum"
	"github.com/bankops/balance-dispense/internal/security"
)

// Response codes (field 39).
const (
	CodeApproved          = "00"
	CodeAccountNotFound   = "14"
	CodeFormatError       = "30"
	CodeInsufficientFunds = "51"
	CodePINFailure        = "55"
	CodeNotDispensable    = "76"
	CodeATMUnavailable    = "91"
	CodeSystemMalfunction = "96"
)

// processingCashWithdrawal is the leading transaction-type digits of field 3.
const processingCashWithdrawal = "01"

// Dispenser is the engine operation the endpoint needs: a withdrawal keyed
// by account number, since that is all an ATM puts on the wire.
type Dispenser interface {
	WithdrawByAccount(accountNumber string, atmID, amount int64) (*models.WithdrawResult, error)
}

// Server accepts ATM connections and handles withdrawal requests.
type Server struct {
	Addr string

	logger   *slog.Logger
	addr     string
	server   *iso8583Server.Server
	engine   Dispenser
	verifier security.PINVerifier
}

// NewServer creates an ISO 8583 server for the given engine. verifier may
// be nil, in which case PIN data is not checked.
func NewServer(logger *slog.Logger, addr string, engine Dispenser, verifier security.PINVerifier) *Server {
	return &Server{
		logger:   logger.With(slog.String("component", "iso8583-server")),
		addr:     addr,
		engine:   engine,
		verifier: verifier,
	}
}

func (s *Server) Start() error {
	s.server = iso8583Server.New(
		specs.Spec87ASCII,
		readMessageLength,
		writeMessageLength,
		connection.InboundMessageHandler(s.handleRequest),
	)

	if err := s.server.Start(s.addr); err != nil {
		return fmt.Errorf("starting iso8583 server: %w", err)
	}
	s.Addr = s.server.Addr

	s.logger.Info("iso8583 server started", slog.String("addr", s.Addr))

	return nil
}

func (s *Server) Close() error {
	if s.server != nil {
		s.server.Close()
	}
	return nil
}

func (s *Server) handleRequest(c *connection.Connection, message *iso8583.Message) {
	response, err := s.Respond(message)
	if err != nil {
		s.logger.Error("building response", "err", err)
		return
	}
	if err := c.Reply(response); err != nil {
		s.logger.Error("sending response", "err", err)
	}
}

// Respond builds the response message for one inbound request. Split from
// the connection handling so the message semantics are testable without a
// network.
func (s *Server) Respond(request *iso8583.Message) (*iso8583.Message, error) {
	mti, err := request.GetMTI()
	if err != nil {
		return nil, fmt.Errorf("getting MTI: %w", err)
	}

	switch mti {
	case "0800":
		response := iso8583.NewMessage(specs.Spec87ASCII)
		response.MTI("0810")
		echoField(request, response, 11)
		response.Field(39, CodeApproved)
		return response, nil
	case "0200":
		return s.respondFinancial(request)
	default:
		return nil, fmt.Errorf("unsupported MTI %s", mti)
	}
}

func (s *Server) respondFinancial(request *iso8583.Message) (*iso8583.Message, error) {
	response := iso8583.NewMessage(specs.Spec87ASCII)
	response.MTI("0210")
	for _, id := range []int{3, 4, 11, 41, 102} {
		echoField(request, response, id)
	}
	if rrn, err := acctnum.RandomDigits(12); err == nil {
		response.Field(37, rrn)
	}

	code, fallback := s.authorize(request)
	response.Field(39, code)
	if fallback != nil {
		response.Field(44, strconv.FormatInt(*fallback, 10))
	}
	return response, nil
}

// authorize parses the request, runs the withdrawal, and maps the outcome
// to a response code plus the optional fallback amount for field 44.
func (s *Server) authorize(request *iso8583.Message) (string, *int64) {
	processingCode, err := request.GetString(3)
	if err != nil || !strings.HasPrefix(processingCode, processingCashWithdrawal) {
		return CodeFormatError, nil
	}

	amount, err := parseAmount(request)
	if err != nil {
		return CodeFormatError, nil
	}

	atmID, err := parseTerminal(request)
	if err != nil {
		return CodeFormatError, nil
	}

	accountNumber, err := request.GetString(102)
	if err != nil || acctnum.Validate(accountNumber) != nil {
		return CodeAccountNotFound, nil
	}

	if s.verifier != nil {
		pinBlock, err := request.GetString(52)
		if err != nil || pinBlock == "" {
			return CodePINFailure, nil
		}
		ok, err := s.verifier.VerifyPINBlock(accountNumber, pinBlock)
		if err != nil || !ok {
			return CodePINFailure, nil
		}
	}

	result, err := s.engine.WithdrawByAccount(accountNumber, atmID, amount)
	if err != nil {
		return mapError(err)
	}

	s.logger.Info("withdrawal dispensed",
		slog.String("reference", result.Reference),
		slog.Int64("atm_id", atmID),
		slog.Int64("amount", amount),
	)

	return CodeApproved, nil
}

func mapError(err error) (string, *int64) {
	var ndErr *models.NotDispensableError
	switch {
	case errors.As(err, &ndErr):
		return CodeNotDispensable, ndErr.Fallback
	case errors.Is(err, models.ErrATMUnavailable):
		return CodeATMUnavailable, nil
	case errors.Is(err, models.ErrAccountNotFound):
		return CodeAccountNotFound, nil
	case errors.Is(err, models.ErrInsufficientFunds):
		return CodeInsufficientFunds, nil
	default:
		return CodeSystemMalfunction, nil
	}
}

// parseAmount reads field 4, a 12-digit zero-padded whole-unit amount.
func parseAmount(request *iso8583.Message) (int64, error) {
	raw, err := request.GetString(4)
	if err != nil {
		return 0, err
	}
	raw = strings.TrimSpace(raw)
	if raw == "" || !acctnum.IsDigits(raw) {
		return 0, fmt.Errorf("invalid amount %q", raw)
	}
	amount, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, err
	}
	if amount <= 0 {
		return 0, fmt.Errorf("amount must be positive")
	}
	return amount, nil
}

// parseTerminal reads field 41, the card acceptor terminal id, which this
// engine uses as the numeric ATM id.
func parseTerminal(request *iso8583.Message) (int64, error) {
	raw, err := request.GetString(41)
	if err != nil {
		return 0, err
	}
	raw = strings.TrimSpace(raw)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid terminal id %q", raw)
	}
	return id, nil
}

func echoField(request, response *iso8583.Message, id int) {
	if value, err := request.GetString(id); err == nil && value != "" {
		response.Field(id, value)
	}
}

// readMessageLength and writeMessageLength implement the 2-byte binary
// network header framing used between the ATMs and this endpoint.
func readMessageLength(r io.Reader) (int, error) {
	header := make([]byte, 2)
	if _, err := io.ReadFull(r, header); err != nil {
		return 0, err
	}
	return int(binary.BigEndian.Uint16(header)), nil
}

func writeMessageLength(w io.Writer, length int) (int, error) {
	header := make([]byte, 2)
	binary.BigEndian.PutUint16(header, uint16(length))
	return w.Write(header)
}
