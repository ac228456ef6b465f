//go:build linux || darwin || freebsd

package volumes

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleMounts = `sysfs /sys sysfs rw,nosuid,nodev,noexec,relatime 0 0
proc /proc proc rw,nosuid,nodev,noexec,relatime 0 0
/dev/nvme0n1p2 / ext4 rw,relatime 0 0
tmpfs /run tmpfs rw,nosuid,nodev 0 0
/dev/nvme0n1p1 /boot/efi vfat rw,relatime 0 0
/dev/sdb1 /media/My\040Files ext4 rw,relatime 0 0
/dev/sdb1 /media/My\040Files ext4 rw,relatime 0 0
cgroup2 /sys/fs/cgroup cgroup2 rw 0 0
broken-line
`

func TestParseMounts(t *testing.T) {
	vols, err := parseMounts(strings.NewReader(sampleMounts))
	require.NoError(t, err)
	require.Len(t, vols, 3)

	assert.Equal(t, Volume{Path: "/", Label: DefaultLabel, Device: "/dev/nvme0n1p2", FSType: "ext4"}, vols[0])
	assert.Equal(t, "/boot/efi", vols[1].Path)
	assert.Equal(t, "efi", vols[1].Label)
	assert.Equal(t, "/media/My Files", vols[2].Path)
	assert.Equal(t, "My Files", vols[2].Label)
}

func TestUnescapeMountField(t *testing.T) {
	assert.Equal(t, "/plain", unescapeMountField("/plain"))
	assert.Equal(t, "/a b\tc", unescapeMountField(`/a\040b\011c`))
	assert.Equal(t, `/trailing\04`, unescapeMountField(`/trailing\04`))
}

func TestStatVolumes_DropsUnready(t *testing.T) {
	dir := t.TempDir()
	got := statVolumes([]Volume{{Path: dir}, {Path: dir + "/does-not-exist"}})
	require.Len(t, got, 1)
	assert.Equal(t, dir, got[0].Path)
	assert.NotZero(t, got[0].TotalBytes)
}

func TestSystemListsRoot(t *testing.T) {
	vols, err := System().List()
	require.NoError(t, err)
	assert.NotEmpty(t, vols)
}
