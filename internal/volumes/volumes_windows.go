//go:build windows

package volumes

import (
	"golang.org/x/sys/windows"
)

func listSystem() ([]Volume, error) {
	mask, err := windows.GetLogicalDrives()
	if err != nil {
		return nil, err
	}
	var vols []Volume
	for i := 0; i < 26; i++ {
		if mask&(1<<uint(i)) == 0 {
			continue
		}
		root := string(rune('A'+i)) + `:\`
		v, ok := driveInfo(root)
		if !ok {
			continue
		}
		vols = append(vols, v)
	}
	return vols, nil
}

// driveInfo reports the drive at root, or false when it is not ready
// (an empty card reader or optical drive, for example).
func driveInfo(root string) (Volume, bool) {
	p, err := windows.UTF16PtrFromString(root)
	if err != nil {
		return Volume{}, false
	}
	var free, total, totalFree uint64
	if err := windows.GetDiskFreeSpaceEx(p, &free, &total, &totalFree); err != nil {
		return Volume{}, false
	}

	label := make([]uint16, windows.MAX_PATH+1)
	fsName := make([]uint16, windows.MAX_PATH+1)
	v := Volume{Path: root, Label: DefaultLabel, TotalBytes: total, FreeBytes: free}
	if err := windows.GetVolumeInformation(p, &label[0], uint32(len(label)), nil, nil, nil, &fsName[0], uint32(len(fsName))); err == nil {
		if l := windows.UTF16ToString(label); l != "" {
			v.Label = l
		}
		v.FSType = windows.UTF16ToString(fsName)
	}
	return v, true
}

func capacity(v *Volume) bool {
	p, err := windows.UTF16PtrFromString(v.Path)
	if err != nil {
		return false
	}
	var free, total, totalFree uint64
	if err := windows.GetDiskFreeSpaceEx(p, &free, &total, &totalFree); err != nil {
		return false
	}
	v.TotalBytes, v.FreeBytes = total, free
	return true
}
