//go:build linux || darwin || freebsd

package volumes

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/sys/unix"
)

const mountsFile = "/proc/self/mounts"

// pseudoFS lists filesystem types that never hold user files.
var pseudoFS = map[string]bool{
	"proc": true, "sysfs": true, "devtmpfs": true, "devpts": true, "tmpfs": true,
	"cgroup": true, "cgroup2": true, "securityfs": true, "debugfs": true, "tracefs": true,
	"pstore": true, "bpf": true, "mqueue": true, "hugetlbfs": true, "configfs": true,
	"fusectl": true, "autofs": true, "binfmt_misc": true, "efivarfs": true, "rpc_pipefs": true,
	"nsfs": true, "squashfs": true, "ramfs": true,
}

func listSystem() ([]Volume, error) {
	f, err := os.Open(mountsFile)
	if err != nil {
		// No mount table (non-Linux unix); the root filesystem is always there.
		return statVolumes([]Volume{{Path: "/", Label: DefaultLabel}}), nil
	}
	defer f.Close()

	vols, err := parseMounts(f)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", mountsFile, err)
	}
	vols = statVolumes(vols)
	if len(vols) == 0 {
		vols = statVolumes([]Volume{{Path: "/", Label: DefaultLabel}})
	}
	return vols, nil
}

// parseMounts reads a mounts(5) table and returns the candidate volumes,
// skipping pseudo filesystems and duplicate mount points.
func parseMounts(r io.Reader) ([]Volume, error) {
	var vols []Volume
	seen := make(map[string]bool)
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) < 3 {
			continue
		}
		device, mountPoint, fsType := fields[0], unescapeMountField(fields[1]), fields[2]
		if pseudoFS[fsType] || seen[mountPoint] {
			continue
		}
		if underSystemDir(mountPoint) {
			continue
		}
		seen[mountPoint] = true
		vols = append(vols, Volume{
			Path:   mountPoint,
			Label:  labelFor(mountPoint),
			Device: device,
			FSType: fsType,
		})
	}
	return vols, sc.Err()
}

func underSystemDir(mountPoint string) bool {
	for _, dir := range []string{"/proc", "/sys", "/dev", "/run"} {
		if mountPoint == dir || strings.HasPrefix(mountPoint, dir+"/") {
			return true
		}
	}
	return false
}

// statVolumes fills capacity and drops volumes that are not ready. Bind
// mounts of single files are not volumes and are dropped too.
func statVolumes(in []Volume) []Volume {
	out := in[:0]
	for _, v := range in {
		if fi, err := os.Stat(v.Path); err != nil || !fi.IsDir() {
			continue
		}
		if !capacity(&v) {
			continue
		}
		out = append(out, v)
	}
	return out
}

// capacity fills in the size of the filesystem holding v.Path. It reports
// false when the filesystem cannot be queried or has no blocks.
func capacity(v *Volume) bool {
	var st unix.Statfs_t
	if err := unix.Statfs(v.Path, &st); err != nil || st.Blocks == 0 {
		return false
	}
	bsize := uint64(st.Bsize)
	v.TotalBytes = uint64(st.Blocks) * bsize
	v.FreeBytes = uint64(st.Bavail) * bsize
	return true
}

// unescapeMountField decodes the octal escapes (\040 for space and so on)
// the kernel uses in mount table fields.
func unescapeMountField(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	var sb strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+3 < len(s) && isOctal(s[i+1]) && isOctal(s[i+2]) && isOctal(s[i+3]) {
			sb.WriteByte((s[i+1]-'0')<<6 | (s[i+2]-'0')<<3 | (s[i+3] - '0'))
			i += 3
			continue
		}
		sb.WriteByte(s[i])
	}
	return sb.String()
}

func isOctal(b byte) bool { return b >= '0' && b <= '7' }
