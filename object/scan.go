package object

import (
	"os"
	"path/filepath"
	"strconv"

	"github.com/pkg/errors"

	"github.com/fbausch/vampyr/cursor"
	"github.com/fbausch/vampyr/decode"
)

// ScanWindow is the fixed window size scan mode sweeps the image in.
const ScanWindow = 0x10000

// Scan sweeps img in ScanWindow-byte windows independent of any KV
// loading, attempting each structured decoder at every window and
// writing a decoded report under outDir/<kind>/decoded_<epoch> on
// success. Failures (UnexpectedMagic, assertion) are silently ignored,
// since most windows will not contain a recognizable object.
func Scan(img cursor.Cursor, outDir string) error {
	size := img.Len()
	for off := int64(0); off+4 <= size; off += ScanWindow {
		if err := img.Seek(off); err != nil {
			return errors.Wrap(err, "scan: seek")
		}
		tryDecodeAt(img, off, outDir)
	}
	return nil
}

func tryDecodeAt(img cursor.Cursor, off int64, outDir string) {
	if err := img.Seek(off); err == nil {
		if om, err := decode.DecodeOSDMap(img); err == nil {
			writeScanResult(outDir, "osdmap", om.Epoch, om.Report())
			return
		}
	}
	if err := img.Seek(off); err == nil {
		if im, err := decode.DecodeIncOSDMap(img); err == nil {
			writeScanResult(outDir, "inc_osdmap", im.Epoch, im.Report())
			return
		}
	}
	if err := img.Seek(off); err == nil {
		if sb, err := decode.DecodeOSDSuperblock(img); err == nil {
			writeScanResult(outDir, "osd_superblock", sb.CurrentEpoch, sb.Report())
			return
		}
	}
}

func writeScanResult(outDir, kind string, epoch uint32, report string) {
	dir := filepath.Join(outDir, kind)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return
	}
	path := filepath.Join(dir, "decoded_"+strconv.FormatUint(uint64(epoch), 10))
	_ = os.WriteFile(path, []byte(report), 0o644)
}
