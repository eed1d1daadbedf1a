package chain

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

type Client struct {
	baseURL      string
	apiKey       string
	http         *http.Client
	maxGasAmount uint64
	gasUnitPrice uint64
	txExpiry     time.Duration
	pollTimeout  time.Duration
	log          *zap.Logger

	seqStore SequenceStore
	seqMu    sync.Mutex
}

// SequenceStore persists the highest sequence number used per sender, so a
// restart behind a stale fullnode never reuses one.
type SequenceStore interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
}

type Options struct {
	MaxGasAmount uint64
	GasUnitPrice uint64
	TxExpiry     time.Duration
	PollTimeout  time.Duration
}

func NewClient(baseURL, apiKey string, timeout time.Duration, opts Options, log *zap.Logger) *Client {
	if opts.MaxGasAmount == 0 {
		opts.MaxGasAmount = 100000
	}
	if opts.GasUnitPrice == 0 {
		opts.GasUnitPrice = 100
	}
	if opts.TxExpiry == 0 {
		opts.TxExpiry = 60 * time.Second
	}
	if opts.PollTimeout == 0 {
		opts.PollTimeout = 30 * time.Second
	}
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		apiKey:  apiKey,
		http: &http.Client{
			Timeout: timeout,
		},
		maxGasAmount: opts.MaxGasAmount,
		gasUnitPrice: opts.GasUnitPrice,
		txExpiry:     opts.TxExpiry,
		pollTimeout:  opts.PollTimeout,
		log:          log,
	}
}

func (c *Client) SetSequenceStore(store SequenceStore) {
	c.seqStore = store
}

type AccountInfo struct {
	SequenceNumber    string `json:"sequence_number"`
	AuthenticationKey string `json:"authentication_key"`
}

type PendingTransaction struct {
	Hash string `json:"hash"`
}

type Event struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type Transaction struct {
	Hash     string  `json:"hash"`
	Type     string  `json:"type"`
	Success  bool    `json:"success"`
	VMStatus string  `json:"vm_status"`
	Events   []Event `json:"events"`
}

func (c *Client) AccountInfo(ctx context.Context, address string) (AccountInfo, error) {
	var info AccountInfo
	if err := c.get(ctx, "/accounts/"+address, &info); err != nil {
		return AccountInfo{}, err
	}
	return info, nil
}

// Module fetches a published module, ABI included. Used as a preflight
// probe before handing transactions to wallets.
func (c *Client) Module(ctx context.Context, address, name string) (json.RawMessage, error) {
	var module json.RawMessage
	if err := c.get(ctx, "/accounts/"+address+"/module/"+name, &module); err != nil {
		return nil, err
	}
	return module, nil
}

type rawTransaction struct {
	Sender                  string        `json:"sender"`
	SequenceNumber          string        `json:"sequence_number"`
	MaxGasAmount            string        `json:"max_gas_amount"`
	GasUnitPrice            string        `json:"gas_unit_price"`
	ExpirationTimestampSecs string        `json:"expiration_timestamp_secs"`
	Payload                 submitPayload `json:"payload"`
}

type submitPayload struct {
	Type          string   `json:"type"`
	Function      string   `json:"function"`
	TypeArguments []string `json:"type_arguments"`
	Arguments     []any    `json:"arguments"`
}

type signedTransaction struct {
	rawTransaction
	Signature txAuthenticator `json:"signature"`
}

type txAuthenticator struct {
	Type      string `json:"type"`
	PublicKey string `json:"public_key"`
	Signature string `json:"signature"`
}

// SubmitEntryFunction signs and submits an entry-function call with the
// custody account and waits for execution.
func (c *Client) SubmitEntryFunction(ctx context.Context, acct *Account, payload EntryFunctionPayload) (*Transaction, error) {
	if acct == nil {
		return nil, errors.New("custody account is required")
	}
	c.seqMu.Lock()
	defer c.seqMu.Unlock()

	seq, err := c.nextSequence(ctx, acct.Address())
	if err != nil {
		return nil, fmt.Errorf("sequence number: %w", err)
	}
	raw := rawTransaction{
		Sender:                  acct.Address(),
		SequenceNumber:          strconv.FormatUint(seq, 10),
		MaxGasAmount:            strconv.FormatUint(c.maxGasAmount, 10),
		GasUnitPrice:            strconv.FormatUint(c.gasUnitPrice, 10),
		ExpirationTimestampSecs: strconv.FormatInt(time.Now().Add(c.txExpiry).Unix(), 10),
		Payload: submitPayload{
			Type:          "entry_function_payload",
			Function:      payload.Function,
			TypeArguments: payload.TypeArguments,
			Arguments:     EncodeArguments(payload.FunctionArguments, OptionStyleSubmit),
		},
	}

	var signingMessage string
	if err := c.post(ctx, "/transactions/encode_submission", raw, &signingMessage); err != nil {
		return nil, fmt.Errorf("encode submission: %w", err)
	}
	message, err := hex.DecodeString(strings.TrimPrefix(signingMessage, "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid signing message: %w", err)
	}

	signed := signedTransaction{
		rawTransaction: raw,
		Signature: txAuthenticator{
			Type:      "ed25519_signature",
			PublicKey: acct.PublicKeyHex(),
			Signature: acct.SignMessage(message),
		},
	}
	var pending PendingTransaction
	if err := c.post(ctx, "/transactions", signed, &pending); err != nil {
		return nil, fmt.Errorf("submit transaction: %w", err)
	}
	c.persistSequence(acct.Address(), seq)

	return c.waitForTransaction(ctx, pending.Hash)
}

func (c *Client) nextSequence(ctx context.Context, address string) (uint64, error) {
	info, err := c.AccountInfo(ctx, address)
	if err != nil {
		return 0, err
	}
	seq, err := strconv.ParseUint(info.SequenceNumber, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid sequence number %q: %w", info.SequenceNumber, err)
	}
	if c.seqStore == nil {
		return seq, nil
	}
	key := sequenceKey(address)
	if raw, ok, err := c.seqStore.Get(ctx, key); err != nil {
		if c.log != nil {
			c.log.Warn("sequence floor read failed", zap.Error(err))
		}
	} else if ok {
		persisted, err := strconv.ParseUint(strings.TrimSpace(raw), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid stored sequence %q: %w", raw, err)
		}
		if persisted+1 > seq {
			seq = persisted + 1
		}
	}
	return seq, nil
}

func (c *Client) persistSequence(address string, seq uint64) {
	if c.seqStore == nil {
		return
	}
	key := sequenceKey(address)
	if err := c.seqStore.Set(context.Background(), key, strconv.FormatUint(seq, 10)); err != nil && c.log != nil {
		c.log.Warn("sequence floor persist failed", zap.String("sequence_key", key), zap.Error(err))
	}
}

func sequenceKey(address string) string {
	return "chain:sequence:" + strings.ToLower(address)
}

func (c *Client) waitForTransaction(ctx context.Context, hash string) (*Transaction, error) {
	deadline := time.Now().Add(c.pollTimeout)
	for {
		var tx Transaction
		err := c.get(ctx, "/transactions/by_hash/"+hash, &tx)
		if err == nil && tx.Type != "pending_transaction" {
			if !tx.Success {
				return &tx, fmt.Errorf("transaction %s failed: %s", hash, tx.VMStatus)
			}
			return &tx, nil
		}
		if err != nil {
			var statusErr *StatusError
			if !errors.As(err, &statusErr) || statusErr.Status != http.StatusNotFound {
				return nil, err
			}
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("transaction %s not confirmed after %s", hash, c.pollTimeout)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Second):
		}
	}
}

type StatusError struct {
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("chain http %d: %s", e.Status, e.Body)
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return &StatusError{Status: resp.StatusCode, Body: string(body)}
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
