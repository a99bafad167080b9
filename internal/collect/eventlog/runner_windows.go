//go:build windows

package eventlog

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
)

// queryChannel shells out to wevtutil for the most recent entries of one
// channel, newest first, with rendered messages included.
func queryChannel(ctx context.Context, channel string, max int) ([]byte, error) {
	out, err := exec.CommandContext(ctx, "wevtutil", "qe", channel,
		"/c:"+strconv.Itoa(max), "/rd:true", "/f:RenderedXml").Output()
	if err != nil {
		return nil, fmt.Errorf("wevtutil query %s: %w", channel, err)
	}
	return out, nil
}
