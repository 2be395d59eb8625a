package yoloprep

// TFRecord object detection specific functionality.

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"strconv"

	"github.com/golang/protobuf/proto"
	"github.com/ryszard/tfutils/go/example"
	"github.com/ryszard/tfutils/go/tfrecord"
	"github.com/ryszard/tfutils/proto/tensorflow/core/example" // package tensorflow
)

// Output file names, relative to the dataset root.
const (
	tfrecordExt      = ".tfrecord"
	LabelMapFileName = "label_map.pbtxt"
)

// TFFeatureMap maps feature names to their values. Values must be convertible to
// tensorflow.Feature.
type TFFeatureMap map[string]interface{}

// toTFFeatures converts a single record to the TensorFlow object detection feature layout.
//
// Boxes are converted from center/size to corner coordinates. Label ids are shifted by one since
// the object detection API reserves id 0 for the background class.
func toTFFeatures(r DatasetRecord, classNames []string) (TFFeatureMap, error) {
	imgData, err := os.ReadFile(r.ImagePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read the image: %v", err)
	}

	f := make(TFFeatureMap, 16)
	f["image/height"] = r.Height
	f["image/width"] = r.Width
	f["image/filename"] = r.ImagePath
	f["image/source_id"] = r.ImagePath
	f["image/encoded"] = imgData
	f["image/format"] = imageFormat(r.ImagePath)

	// Prepare the per label data.
	numLabels := len(r.Boxes)
	xmins := make([]float32, numLabels)
	ymins := make([]float32, numLabels)
	xmaxs := make([]float32, numLabels)
	ymaxs := make([]float32, numLabels)
	classes := make([]string, numLabels)
	classIDs := make([]int64, numLabels)
	for i, b := range r.Boxes {
		if b.ClassID < 0 || b.ClassID >= len(classNames) {
			return nil, fmt.Errorf("class id %d out of range", b.ClassID)
		}
		xmins[i] = float32(b.XCenter - b.Width/2)
		ymins[i] = float32(b.YCenter - b.Height/2)
		xmaxs[i] = float32(b.XCenter + b.Width/2)
		ymaxs[i] = float32(b.YCenter + b.Height/2)
		classes[i] = classNames[b.ClassID]
		classIDs[i] = int64(b.ClassID) + 1
	}
	f["image/object/bbox/xmin"] = xmins
	f["image/object/bbox/ymin"] = ymins
	f["image/object/bbox/xmax"] = xmaxs
	f["image/object/bbox/ymax"] = ymaxs
	f["image/object/class/text"] = classes
	f["image/object/class/label"] = classIDs

	return f, nil
}

// WriteTFRecord does a streaming conversion, serialisation and file write of the records to one or
// more TFRecord files stored under recordFilePath (with suffixes added when numShards>1). The
// classes must be frozen.
//
// Records that cannot be converted are skipped and returned as ErrIO errors.
func WriteTFRecord(recordFilePath string, records DatasetRecords, classes *ClassTable,
	numShards int, logger *slog.Logger) (skipped []error, err error) {

	defer func() {
		if e := recover(); e != nil {
			err = fmt.Errorf("conversion to TensorFlow Example failed: %v", e)
		}
	}()

	logger = orDefault(logger)
	if !classes.Frozen() {
		return nil, fmt.Errorf("the class table must be frozen before writing TFRecords")
	}
	if numShards <= 0 {
		numShards = 1
	}
	if len(records) == 0 {
		numShards = 1
	}

	fmtShardSuffix := func(idx int) string {
		return fmt.Sprintf("-%05d-of-%05d", idx, numShards)
	}

	var shardFile *os.File
	defer func() {
		if shardFile != nil {
			closeWithErrCheck(shardFile, &err)
		}
	}()
	shardSize := int(math.Ceil(float64(len(records)) / float64(numShards)))
	if shardSize == 0 {
		shardSize = 1
	}
	shardIdx := -1
	names := classes.Names()

	// Convert and serialise one record at a time.
	for i, r := range records {
		// Check if a new shard file needs to be opened for writing.
		if i%shardSize == 0 {
			shardIdx++

			if shardFile != nil {
				if err := shardFile.Close(); err != nil {
					return skipped, err
				}
				shardFile = nil
			}

			shardPath := recordFilePath
			if numShards > 1 {
				shardPath += fmtShardSuffix(shardIdx)
			}
			f, err := os.Create(shardPath)
			if err != nil {
				return skipped, fmt.Errorf("failed to create shard at %q: %v", shardPath, err)
			}
			shardFile = f
		}

		features, err := toTFFeatures(r, names)
		if err != nil {
			err = newRecordError(ErrIO, r.ImagePath, err)
			logger.Warn("skipping", "file", r.ImagePath, "reason", Reason(err), "error", err)
			skipped = append(skipped, err)
			continue
		}

		if err := writeTFRecordExample(shardFile, example.New(features)); err != nil {
			return skipped, fmt.Errorf("failed to write example: %v", err)
		}
	}

	// An empty subset still gets an (empty) record file.
	if shardFile == nil {
		f, err := os.Create(recordFilePath)
		if err != nil {
			return skipped, err
		}
		shardFile = f
	}

	return skipped, nil
}

// writeTFRecordExample serialises the example and writes it as a TFRecord to w.
func writeTFRecordExample(w io.Writer, e *tensorflow.Example) error {
	enc, err := proto.Marshal(e)
	if err != nil {
		return err
	}

	return tfrecord.Write(w, enc)
}

// WriteTFRecordLabelMap writes the classes as a StringIntLabelMap in prototxt format to path, with
// ids shifted by one to match WriteTFRecord.
func WriteTFRecordLabelMap(path string, classes *ClassTable) (err error) {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create the label map file %q: %v", path, err)
	}
	defer closeWithErrCheck(file, &err)

	w := bufio.NewWriter(file)
	for i, name := range classes.Names() {
		_, _ = fmt.Fprintf(w, "item {\n  name: %s\n  id: %d\n}\n", strconv.Quote(name), i+1)
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("failed to write the label map %q: %v", path, err)
	}
	return nil
}
