package tblog

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
	"math"

	"google.golang.org/protobuf/encoding/protowire"
)

// Field numbers from the TensorFlow event and summary protos. Only the
// fields written here are modeled.
const (
	eventWallTime    = 1 // double
	eventStep        = 2 // int64
	eventFileVersion = 3 // string
	eventSummary     = 5 // Summary

	summaryValue = 1 // repeated Summary.Value

	valueTag         = 1 // string
	valueSimpleValue = 2 // float
	valueImage       = 4 // Summary.Image
	valueHisto       = 5 // HistogramProto
	valueTensor      = 8 // TensorProto
	valueMetadata    = 9 // SummaryMetadata

	imageHeight     = 1 // int32
	imageWidth      = 2 // int32
	imageColorspace = 3 // int32, 1 = grayscale
	imageEncoded    = 4 // bytes

	histoMin         = 1 // double
	histoMax         = 2 // double
	histoNum         = 3 // double
	histoSum         = 4 // double
	histoSumSquares  = 5 // double
	histoBucketLimit = 6 // repeated double, packed
	histoBucket      = 7 // repeated double, packed

	metadataPluginData = 1 // SummaryMetadata.PluginData
	pluginName         = 1 // string

	tensorDtype     = 1 // enum, DT_STRING = 7
	tensorShape     = 2 // TensorShapeProto
	tensorStringVal = 8 // repeated bytes

	shapeDim = 2 // repeated TensorShapeProto.Dim
	dimSize  = 1 // int64

	histogramBuckets = 30
)

func appendDouble(buf []byte, field protowire.Number, v float64) []byte {
	buf = protowire.AppendTag(buf, field, protowire.Fixed64Type)
	return protowire.AppendFixed64(buf, math.Float64bits(v))
}

func appendFloat(buf []byte, field protowire.Number, v float32) []byte {
	buf = protowire.AppendTag(buf, field, protowire.Fixed32Type)
	return protowire.AppendFixed32(buf, math.Float32bits(v))
}

func appendVarintField(buf []byte, field protowire.Number, v uint64) []byte {
	buf = protowire.AppendTag(buf, field, protowire.VarintType)
	return protowire.AppendVarint(buf, v)
}

func appendBytesField(buf []byte, field protowire.Number, v []byte) []byte {
	buf = protowire.AppendTag(buf, field, protowire.BytesType)
	return protowire.AppendBytes(buf, v)
}

func appendStringField(buf []byte, field protowire.Number, v string) []byte {
	buf = protowire.AppendTag(buf, field, protowire.BytesType)
	return protowire.AppendString(buf, v)
}

// encodeEvent wraps an optional serialized summary into an Event message.
func encodeEvent(wallTime float64, step int64, summary []byte) []byte {
	var buf []byte
	buf = appendDouble(buf, eventWallTime, wallTime)
	if step > 0 {
		buf = appendVarintField(buf, eventStep, uint64(step))
	}
	if summary != nil {
		buf = appendBytesField(buf, eventSummary, summary)
	}
	return buf
}

func encodeFileVersion(wallTime float64) []byte {
	var buf []byte
	buf = appendDouble(buf, eventWallTime, wallTime)
	buf = appendStringField(buf, eventFileVersion, "brain.Event:2")
	return buf
}

func encodeScalarEvent(wallTime float64, step int64, tag string, value float32) []byte {
	var val []byte
	val = appendStringField(val, valueTag, tag)
	val = appendFloat(val, valueSimpleValue, value)

	var summary []byte
	summary = appendBytesField(summary, summaryValue, val)
	return encodeEvent(wallTime, step, summary)
}

func encodeHistogramEvent(wallTime float64, step int64, tag string, values []float32) []byte {
	minV := float64(values[0])
	maxV := float64(values[0])
	sum := 0.0
	sumSq := 0.0
	for _, v := range values {
		f := float64(v)
		if f < minV {
			minV = f
		}
		if f > maxV {
			maxV = f
		}
		sum += f
		sumSq += f * f
	}

	// evenly spaced buckets over [min, max]; a degenerate range collapses
	// to a single bucket
	limits := make([]float64, 0, histogramBuckets)
	counts := make([]float64, 0, histogramBuckets)
	if maxV == minV {
		limits = append(limits, maxV)
		counts = append(counts, float64(len(values)))
	} else {
		width := (maxV - minV) / histogramBuckets
		bucketCounts := make([]float64, histogramBuckets)
		for _, v := range values {
			idx := int((float64(v) - minV) / width)
			if idx >= histogramBuckets {
				idx = histogramBuckets - 1
			}
			bucketCounts[idx]++
		}
		for i := 0; i < histogramBuckets; i++ {
			limits = append(limits, minV+width*float64(i+1))
			counts = append(counts, bucketCounts[i])
		}
	}

	var histo []byte
	histo = appendDouble(histo, histoMin, minV)
	histo = appendDouble(histo, histoMax, maxV)
	histo = appendDouble(histo, histoNum, float64(len(values)))
	histo = appendDouble(histo, histoSum, sum)
	histo = appendDouble(histo, histoSumSquares, sumSq)
	histo = appendBytesField(histo, histoBucketLimit, packDoubles(limits))
	histo = appendBytesField(histo, histoBucket, packDoubles(counts))

	var val []byte
	val = appendStringField(val, valueTag, tag)
	val = appendBytesField(val, valueHisto, histo)

	var summary []byte
	summary = appendBytesField(summary, summaryValue, val)
	return encodeEvent(wallTime, step, summary)
}

func encodeImageEvent(wallTime float64, step int64, tag string, pixels []float32, height, width int) ([]byte, error) {
	img := image.NewGray(image.Rect(0, 0, width, height))
	for i, v := range pixels {
		if v < 0 {
			v = 0
		}
		if v > 1 {
			v = 1
		}
		img.Pix[i] = uint8(v*255 + 0.5)
	}

	var encoded bytes.Buffer
	if err := png.Encode(&encoded, img); err != nil {
		return nil, fmt.Errorf("encode summary image: %w", err)
	}

	var im []byte
	im = appendVarintField(im, imageHeight, uint64(height))
	im = appendVarintField(im, imageWidth, uint64(width))
	im = appendVarintField(im, imageColorspace, 1)
	im = appendBytesField(im, imageEncoded, encoded.Bytes())

	var val []byte
	val = appendStringField(val, valueTag, tag)
	val = appendBytesField(val, valueImage, im)

	var summary []byte
	summary = appendBytesField(summary, summaryValue, val)
	return encodeEvent(wallTime, step, summary), nil
}

func encodeTextEvent(wallTime float64, step int64, tag, text string) []byte {
	// scalar string tensor routed to the text plugin
	var dim []byte
	dim = appendVarintField(dim, dimSize, 1)
	var shape []byte
	shape = appendBytesField(shape, shapeDim, dim)

	var tensor []byte
	tensor = appendVarintField(tensor, tensorDtype, 7) // DT_STRING
	tensor = appendBytesField(tensor, tensorShape, shape)
	tensor = appendStringField(tensor, tensorStringVal, text)

	var plugin []byte
	plugin = appendStringField(plugin, pluginName, "text")
	var metadata []byte
	metadata = appendBytesField(metadata, metadataPluginData, plugin)

	var val []byte
	val = appendStringField(val, valueTag, tag)
	val = appendBytesField(val, valueTensor, tensor)
	val = appendBytesField(val, valueMetadata, metadata)

	var summary []byte
	summary = appendBytesField(summary, summaryValue, val)
	return encodeEvent(wallTime, step, summary)
}

func packDoubles(values []float64) []byte {
	buf := make([]byte, 0, len(values)*8)
	for _, v := range values {
		buf = protowire.AppendFixed64(buf, math.Float64bits(v))
	}
	return buf
}
