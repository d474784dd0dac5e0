package axelar

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cosmos/cosmos-sdk/client"
	"github.com/cosmos/cosmos-sdk/client/flags"
	"github.com/cosmos/cosmos-sdk/crypto/hd"
	"github.com/cosmos/cosmos-sdk/crypto/keys/secp256k1"
	sdk "github.com/cosmos/cosmos-sdk/types"
	txtypes "github.com/cosmos/cosmos-sdk/types/tx"
	"github.com/cosmos/cosmos-sdk/types/tx/signing"
	authsigning "github.com/cosmos/cosmos-sdk/x/auth/signing"
	authtypes "github.com/cosmos/cosmos-sdk/x/auth/types"
	"github.com/cosmos/go-bip39"
	"github.com/gogo/protobuf/proto"
	"github.com/rs/zerolog/log"
	"github.com/scalarorg/cosmos-gmp-relayer/config"
	"github.com/scalarorg/cosmos-gmp-relayer/internal/codec"
	"github.com/scalarorg/cosmos-gmp-relayer/pkg/metrics"
)

const DEFAULT_BIP44_PATH = "m/44'/118'/0'/0/0"

var (
	ErrMaxRetriesExceeded = errors.New("max retries exceeded")
	ErrTxFailed           = errors.New("hub transaction failed")
	ErrTxNotIncluded      = errors.New("hub transaction not included")

	sequenceMismatchRegex = regexp.MustCompile(`account sequence mismatch, expected (\d+), got (\d+)`)
)

type broadcastFunc func(ctx context.Context, msgs ...sdk.Msg) (*sdk.TxResponse, error)

type queryTxFunc func(ctx context.Context, txHash string) (*sdk.TxResponse, error)

// SigningClient owns the relayer hub account. It signs with SIGN_MODE_DIRECT and
// retries broadcasts rejected with an account sequence mismatch.
type SigningClient struct {
	config    *config.AxelarConfig
	clientCtx client.Context
	txConfig  client.TxConfig
	privKey   *secp256k1.PrivKey
	addr      sdk.AccAddress

	// mutex serializes sign+broadcast so the local sequence stays consistent
	mutex        sync.Mutex
	nextSequence uint64

	broadcast broadcastFunc
	queryTx   queryTxFunc
	sleep     func(ctx context.Context, d time.Duration) error
}

func CreateAccountFromMnemonic(mnemonic string, bip44Path string) (*secp256k1.PrivKey, sdk.AccAddress, error) {
	if !bip39.IsMnemonicValid(mnemonic) {
		return nil, nil, fmt.Errorf("invalid mnemonic")
	}
	path := DEFAULT_BIP44_PATH
	if bip44Path != "" {
		path = bip44Path
	}
	seed := bip39.NewSeed(mnemonic, "")
	master, ch := hd.ComputeMastersFromSeed(seed)
	privKeyBytes, err := hd.DerivePrivateKeyForPath(master, ch, path)
	if err != nil {
		return nil, nil, err
	}
	privKey := &secp256k1.PrivKey{Key: privKeyBytes}
	addr := sdk.AccAddress(privKey.PubKey().Address())
	return privKey, addr, nil
}

// ExtractCurrentSequence reads the expected and the submitted sequence from a mismatch error.
func ExtractCurrentSequence(err error) (uint64, uint64, bool) {
	if err == nil {
		return 0, 0, false
	}
	match := sequenceMismatchRegex.FindStringSubmatch(err.Error())
	if len(match) < 3 {
		return 0, 0, false
	}
	expected, err1 := strconv.ParseUint(match[1], 10, 64)
	got, err2 := strconv.ParseUint(match[2], 10, 64)
	if err1 != nil || err2 != nil {
		return 0, 0, false
	}
	return expected, got, true
}

func IsSequenceMismatch(err error) bool {
	return err != nil && strings.Contains(err.Error(), "account sequence mismatch")
}

func CreateClientContext(axelarConfig *config.AxelarConfig, addr sdk.AccAddress) (client.Context, error) {
	clientCtx := client.Context{}.
		WithChainID(axelarConfig.ChainID).
		WithCodec(codec.GetProtoCodec()).
		WithInterfaceRegistry(codec.GetInterfaceRegistry()).
		WithTxConfig(codec.GetTxConfig()).
		WithAccountRetriever(authtypes.AccountRetriever{}).
		WithBroadcastMode(axelarConfig.BroadcastMode).
		WithOutputFormat("json")
	if addr != nil {
		clientCtx = clientCtx.WithFromAddress(addr)
	}
	if axelarConfig.RPCUrl != "" {
		log.Info().Msgf("[SigningClient] create rpc client using RPC URL: %s", axelarConfig.RPCUrl)
		rpcClient, err := client.NewClientFromNode(axelarConfig.RPCUrl)
		if err != nil {
			return clientCtx, fmt.Errorf("failed to create RPC client: %w", err)
		}
		clientCtx = clientCtx.WithNodeURI(axelarConfig.RPCUrl).WithClient(rpcClient)
	}
	return clientCtx, nil
}

func NewSigningClient(axelarConfig *config.AxelarConfig) (*SigningClient, error) {
	privKey, addr, err := CreateAccountFromMnemonic(axelarConfig.Mnemonic, axelarConfig.Bip44Path)
	if err != nil {
		return nil, fmt.Errorf("failed to create account from mnemonic: %w", err)
	}
	clientCtx, err := CreateClientContext(axelarConfig, addr)
	if err != nil {
		return nil, err
	}
	log.Info().Str("address", addr.String()).Str("chainId", axelarConfig.ChainID).
		Msg("[SigningClient] hub signer ready")
	c := &SigningClient{
		config:    axelarConfig,
		clientCtx: clientCtx,
		txConfig:  codec.GetTxConfig(),
		privKey:   privKey,
		addr:      addr,
		sleep:     sleepContext,
	}
	c.broadcast = c.signAndBroadcast
	c.queryTx = c.queryTxByHash
	return c, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (c *SigningClient) GetAddress() sdk.AccAddress {
	return c.addr
}

func (c *SigningClient) GetClientCtx() client.Context {
	return c.clientCtx
}

// SignAndBroadcast broadcasts msgs and waits for inclusion. A sequence mismatch is retried
// after RetryDelay up to MaxRetries times, then ErrMaxRetriesExceeded is returned.
func (c *SigningClient) SignAndBroadcast(ctx context.Context, msgs ...sdk.Msg) (*sdk.TxResponse, error) {
	msgName := messageNames(msgs)
	for attempt := 0; ; attempt++ {
		res, err := c.broadcast(ctx, msgs...)
		if err == nil {
			metrics.BroadcastTotal.WithLabelValues(msgName, metrics.OUTCOME_OK).Inc()
			return res, nil
		}
		if !IsSequenceMismatch(err) {
			metrics.BroadcastTotal.WithLabelValues(msgName, metrics.OUTCOME_ERROR).Inc()
			return res, err
		}
		if attempt >= c.config.MaxRetries {
			metrics.BroadcastTotal.WithLabelValues(msgName, metrics.OUTCOME_ERROR).Inc()
			return nil, fmt.Errorf("broadcast %s: %w: %v", msgName, ErrMaxRetriesExceeded, err)
		}
		log.Warn().Str("msg", msgName).Int("attempt", attempt+1).
			Msgf("[SigningClient] [SignAndBroadcast] account sequence mismatch, retrying in %s", c.config.GetRetryDelay())
		metrics.BroadcastRetries.WithLabelValues(msgName).Inc()
		if err := c.sleep(ctx, c.config.GetRetryDelay()); err != nil {
			return nil, err
		}
	}
}

func messageNames(msgs []sdk.Msg) string {
	names := make([]string, len(msgs))
	for i, msg := range msgs {
		names[i] = proto.MessageName(msg)
	}
	return strings.Join(names, ",")
}

func (c *SigningClient) signAndBroadcast(ctx context.Context, msgs ...sdk.Msg) (*sdk.TxResponse, error) {
	res, err := c.signAndSubmit(ctx, msgs...)
	if err != nil {
		return res, err
	}
	if c.config.BroadcastMode == flags.BroadcastBlock {
		return res, nil
	}
	return c.WaitForTx(ctx, res.TxHash)
}

func (c *SigningClient) signAndSubmit(ctx context.Context, msgs ...sdk.Msg) (*sdk.TxResponse, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	accountNumber, sequence, err := c.clientCtx.AccountRetriever.GetAccountNumberSequence(c.clientCtx, c.addr)
	if err != nil {
		return nil, fmt.Errorf("failed to query account %s: %w", c.addr.String(), err)
	}
	// the committed sequence lags behind txs still sitting in the mempool
	if c.nextSequence > sequence {
		sequence = c.nextSequence
	}
	txBuilder := c.txConfig.NewTxBuilder()
	if err := txBuilder.SetMsgs(msgs...); err != nil {
		return nil, err
	}
	txBuilder.SetGasLimit(c.config.GasLimit)
	txBuilder.SetFeeAmount(sdk.NewCoins(sdk.NewInt64Coin(c.config.Denom, c.config.FeeAmount)))
	if err := c.signTx(txBuilder, accountNumber, sequence); err != nil {
		return nil, fmt.Errorf("failed to sign tx: %w", err)
	}
	txBytes, err := c.txConfig.TxEncoder()(txBuilder.GetTx())
	if err != nil {
		return nil, err
	}
	res, err := c.BroadcastTx(ctx, txBytes)
	if err != nil {
		return nil, err
	}
	if res.Code != 0 {
		if expected, _, ok := ExtractCurrentSequence(errors.New(res.RawLog)); ok {
			c.nextSequence = expected
		}
		return res, fmt.Errorf("%w: code %d: %s", ErrTxFailed, res.Code, res.RawLog)
	}
	c.nextSequence = sequence + 1
	log.Debug().Str("txHash", res.TxHash).Uint64("sequence", sequence).
		Msg("[SigningClient] [signAndSubmit] tx accepted")
	return res, nil
}

func (c *SigningClient) signTx(txBuilder client.TxBuilder, accountNumber uint64, sequence uint64) error {
	signMode := signing.SignMode_SIGN_MODE_DIRECT
	signerData := authsigning.SignerData{
		ChainID:       c.config.ChainID,
		AccountNumber: accountNumber,
		Sequence:      sequence,
	}
	// SetSignatures with an empty signature populates SignerInfos, which are part of the sign bytes.
	sigV2 := signing.SignatureV2{
		PubKey:   c.privKey.PubKey(),
		Data:     &signing.SingleSignatureData{SignMode: signMode, Signature: nil},
		Sequence: sequence,
	}
	if err := txBuilder.SetSignatures(sigV2); err != nil {
		return err
	}
	bytesToSign, err := c.txConfig.SignModeHandler().GetSignBytes(signMode, signerData, txBuilder.GetTx())
	if err != nil {
		return err
	}
	sigBytes, err := c.privKey.Sign(bytesToSign)
	if err != nil {
		return err
	}
	sigV2 = signing.SignatureV2{
		PubKey:   c.privKey.PubKey(),
		Data:     &signing.SingleSignatureData{SignMode: signMode, Signature: sigBytes},
		Sequence: sequence,
	}
	return txBuilder.SetSignatures(sigV2)
}

func (c *SigningClient) BroadcastTx(ctx context.Context, txBytes []byte) (*sdk.TxResponse, error) {
	node, err := c.clientCtx.GetNode()
	if err != nil {
		return nil, err
	}
	switch c.config.BroadcastMode {
	case flags.BroadcastSync:
		res, err := node.BroadcastTxSync(ctx, txBytes)
		if errRes := client.CheckTendermintError(err, txBytes); errRes != nil {
			return errRes, nil
		}
		if err != nil {
			return nil, err
		}
		return sdk.NewResponseFormatBroadcastTx(res), nil
	case flags.BroadcastAsync:
		res, err := node.BroadcastTxAsync(ctx, txBytes)
		if errRes := client.CheckTendermintError(err, txBytes); errRes != nil {
			return errRes, nil
		}
		if err != nil {
			return nil, err
		}
		return sdk.NewResponseFormatBroadcastTx(res), nil
	case flags.BroadcastBlock:
		res, err := node.BroadcastTxCommit(ctx, txBytes)
		if err == nil {
			return sdk.NewResponseFormatBroadcastTxCommit(res), nil
		}
		if errRes := client.CheckTendermintError(err, txBytes); errRes != nil {
			return errRes, nil
		}
		return nil, err
	default:
		return nil, fmt.Errorf("unsupported broadcast mode %s; supported modes: sync, async, block", c.config.BroadcastMode)
	}
}

func (c *SigningClient) queryTxByHash(ctx context.Context, txHash string) (*sdk.TxResponse, error) {
	res, err := txtypes.NewServiceClient(c.clientCtx).GetTx(ctx, &txtypes.GetTxRequest{Hash: txHash})
	if err != nil {
		return nil, err
	}
	return res.GetTxResponse(), nil
}

// WaitForTx polls the hub until the tx is included, at most TxPollMax times.
// A tx included with a non zero code is returned together with ErrTxFailed.
func (c *SigningClient) WaitForTx(ctx context.Context, txHash string) (*sdk.TxResponse, error) {
	var lastErr error
	for attempt := 0; attempt < c.config.TxPollMax; attempt++ {
		if err := c.sleep(ctx, c.config.GetTxPollInterval()); err != nil {
			return nil, err
		}
		res, err := c.queryTx(ctx, txHash)
		if err != nil || res == nil {
			lastErr = err
			continue
		}
		if res.Code != 0 {
			return res, fmt.Errorf("%w: %s code %d: %s", ErrTxFailed, txHash, res.Code, res.RawLog)
		}
		return res, nil
	}
	return nil, fmt.Errorf("%w: %s after %d queries: %v", ErrTxNotIncluded, txHash, c.config.TxPollMax, lastErr)
}
