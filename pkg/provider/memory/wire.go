package memory

import (
	"encoding/xml"
	"strconv"
	"time"

	"github.com/3leaps/nimbusdir/pkg/provider"
)

const s3Namespace = "http://s3.amazonaws.com/doc/2006-03-01/"

const timeFormat = "2006-01-02T15:04:05.000Z"

type listBucketResult struct {
	XMLName               xml.Name       `xml:"ListBucketResult"`
	Xmlns                 string         `xml:"xmlns,attr"`
	Name                  string         `xml:"Name"`
	Prefix                string         `xml:"Prefix"`
	Delimiter             string         `xml:"Delimiter,omitempty"`
	MaxKeys               int            `xml:"MaxKeys"`
	KeyCount              int            `xml:"KeyCount"`
	IsTruncated           bool           `xml:"IsTruncated"`
	Contents              []listContent  `xml:"Contents"`
	CommonPrefixes        []commonPrefix `xml:"CommonPrefixes,omitempty"`
	ContinuationToken     string         `xml:"ContinuationToken,omitempty"`
	NextContinuationToken string         `xml:"NextContinuationToken,omitempty"`
}

type listContent struct {
	Key          string `xml:"Key"`
	LastModified string `xml:"LastModified"`
	ETag         string `xml:"ETag"`
	Size         int64  `xml:"Size"`
	StorageClass string `xml:"StorageClass"`
}

type commonPrefix struct {
	Prefix string `xml:"Prefix"`
}

type copyObjectResult struct {
	XMLName      xml.Name `xml:"CopyObjectResult"`
	ETag         string   `xml:"ETag"`
	LastModified string   `xml:"LastModified"`
}

type errorResponse struct {
	XMLName   xml.Name `xml:"Error"`
	Code      string   `xml:"Code"`
	Message   string   `xml:"Message"`
	Resource  string   `xml:"Resource,omitempty"`
	RequestID string   `xml:"RequestId"`
}

func encodeList(bucket string, opts provider.ListOptions, page listPage) ([]byte, error) {
	res := listBucketResult{
		Xmlns:                 s3Namespace,
		Name:                  bucket,
		Prefix:                opts.Prefix,
		Delimiter:             opts.Delimiter,
		MaxKeys:               page.maxKeys,
		KeyCount:              len(page.entries),
		IsTruncated:           page.truncated,
		ContinuationToken:     opts.ContinuationToken,
		NextContinuationToken: page.next,
	}
	for _, e := range page.entries {
		if e.prefix != "" {
			res.CommonPrefixes = append(res.CommonPrefixes, commonPrefix{Prefix: e.prefix})
			continue
		}
		res.Contents = append(res.Contents, listContent{
			Key:          e.key,
			LastModified: e.obj.modified.Format(timeFormat),
			ETag:         e.obj.etag,
			Size:         int64(len(e.obj.content)),
			StorageClass: "STANDARD",
		})
	}
	return marshal(res)
}

func encodeCopyResult(obj *object) ([]byte, error) {
	return marshal(copyObjectResult{ETag: obj.etag, LastModified: obj.modified.Format(timeFormat)})
}

// errorDocument renders an S3 <Error> body. Encoding a flat struct of strings
// cannot fail.
func errorDocument(code, message, resource string) []byte {
	body, _ := marshal(errorResponse{
		Code:      code,
		Message:   message,
		Resource:  resource,
		RequestID: strconv.FormatInt(time.Now().UnixNano(), 36),
	})
	return body
}

func marshal(v any) ([]byte, error) {
	body, err := xml.Marshal(v)
	if err != nil {
		return nil, err
	}
	return append([]byte(xml.Header), body...), nil
}
