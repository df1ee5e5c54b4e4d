package fuse

import (
	"bytes"
	"fmt"
	"os/exec"
)

func unmount(dir string) error {
	cmd := exec.Command("umount", dir)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%v: %s", err, bytes.TrimRight(output, "\n"))
	}
	return nil
}
