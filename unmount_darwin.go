package fuse

import (
	"bytes"
	"fmt"
	"os/exec"
)

func unmount(dir string) error {
	cmd := exec.Command("diskutil", "unmount", dir)
	output, err := cmd.CombinedOutput()
	if err == nil {
		return nil
	}

	// diskutil only knows about OS X-native volumes; fall back to the
	// generic umount(8) for osxfuse mounts that aren't registered as disks.
	cmd = exec.Command("umount", dir)
	out2, err2 := cmd.CombinedOutput()
	if err2 == nil {
		return nil
	}

	combined := bytes.TrimRight(append(output, out2...), "\n")
	return fmt.Errorf("%v: %s", err2, combined)
}
