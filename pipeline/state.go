// Package pipeline implements the replication state machine: fetch the
// next sequence numbers from an upstream minute-diff mirror, run them
// through BBoxEnricher and the region filter.Tree, and apply the
// change to the Store.
package pipeline

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"osmreplica/model"
)

// ReadStateFile reads a state.txt's sequenceNumber= line. A missing
// file is reported with the same "please install a valid state file"
// framing the upstream state-file reader uses, since the pipeline
// cannot proceed without a starting point.
func ReadStateFile(path string) (uint64, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, errors.Wrapf(model.ErrMissingState, "%s: %v", path, err)
		}
		return 0, errors.Wrapf(err, "unable to read state file %s", path)
	}
	defer f.Close()
	return readSequenceNumber(f, path)
}

func readSequenceNumber(r *os.File, source string) (uint64, error) {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := sc.Text()
		if after, ok := strings.CutPrefix(line, "sequenceNumber="); ok {
			n, err := strconv.ParseUint(strings.TrimSpace(after), 10, 64)
			if err != nil {
				return 0, errors.Wrapf(err, "parsing sequenceNumber in %s", source)
			}
			return n, nil
		}
	}
	if err := sc.Err(); err != nil {
		return 0, errors.Wrapf(err, "reading %s", source)
	}
	return 0, errors.Wrapf(model.ErrStateMalformed, "%s", source)
}

// SequencePath computes the three-level AAA/BBB/CCC split for sequence
// number n, each component zero-padded to 3 digits.
func SequencePath(n uint64) string {
	a := (n / 1_000_000) % 1000
	b := (n / 1_000) % 1000
	c := n % 1000
	return fmt.Sprintf("%03d/%03d/%03d", a, b, c)
}
