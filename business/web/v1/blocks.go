package v1

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/contentledger/blockchain/foundation/blockchain/state"
)

// ParseBlockRange converts the from and to path values into block numbers. The
// value "latest" or an empty value selects the tip.
func ParseBlockRange(fromStr string, toStr string) (uint64, uint64, error) {
	if fromStr == "latest" || fromStr == "" {
		fromStr = fmt.Sprintf("%d", state.QueryLastest)
	}

	if toStr == "latest" || toStr == "" {
		toStr = fmt.Sprintf("%d", state.QueryLastest)
	}

	from, err := strconv.ParseUint(fromStr, 10, 64)
	if err != nil {
		return 0, 0, err
	}
	to, err := strconv.ParseUint(toStr, 10, 64)
	if err != nil {
		return 0, 0, err
	}

	if from > to {
		return 0, 0, errors.New("from greater than to")
	}

	return from, to, nil
}
