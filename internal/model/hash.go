package model

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"
)

// RealInputHash identifies an action across snapshots. It is the first input
// leg's tx id, or for actions without one (switch and other synthetic
// actions) a keccak256 digest of date, input address and input amount.
// It returns "" when there is no input coin to derive a hash from.
func RealInputHash(dateMs int64, in []Leg) string {
	if len(in) == 0 {
		return ""
	}
	first := in[0]
	if txID := strings.TrimSpace(first.TxID); txID != "" {
		return txID
	}
	if len(first.Coins) == 0 {
		return ""
	}

	seed := fmt.Sprintf("%d|%s|%s", dateMs, first.Address, first.Coins[0].Amount.String())
	return "synthetic-" + crypto.Keccak256Hash([]byte(seed)).Hex()[2:]
}
