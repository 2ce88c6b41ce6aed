//go:build !windows

package less

import "strings"

func joinList(dirs []string) string {
	return strings.Join(dirs, ":")
}
