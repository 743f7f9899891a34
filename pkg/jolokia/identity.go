package jolokia

import (
	"context"
	"encoding/hex"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/zeebo/blake3"
)

type runtimeInfo struct {
	Name      string `json:"Name"`
	StartTime int64  `json:"StartTime"`
	VmVendor  string `json:"VmVendor"`
	VmVersion string `json:"VmVersion"`
}

// JvmId derives a stable identity of the JVM behind connectUrl from its
// runtime attributes. The identity changes when the JVM restarts, even if
// it comes back under the same address.
func (c *Client) JvmId(ctx context.Context, connectUrl string) (string, error) {
	var info runtimeInfo

	attributes := []string{"Name", "StartTime", "VmVendor", "VmVersion"}
	if err := c.read(ctx, connectUrl, runtimeMBean, attributes, &info); err != nil {
		return "", err
	}

	if info.Name == "" || info.StartTime == 0 {
		return "", errors.Errorf("incomplete runtime identity of %s", connectUrl)
	}

	sum := blake3.Sum256([]byte(strings.Join([]string{
		info.Name,
		strconv.FormatInt(info.StartTime, 10),
		info.VmVendor,
		info.VmVersion,
	}, "\x00")))

	return hex.EncodeToString(sum[:]), nil
}
