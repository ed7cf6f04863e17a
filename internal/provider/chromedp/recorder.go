package chromedp

import (
	"encoding/base64"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"

	"github.com/croque-scale/netcapture/internal/capture"
)

// networkRecorder accumulates request/response pairs from CDP network events
// on one tab and tracks in-flight activity for idle detection.
type networkRecorder struct {
	mu           sync.Mutex
	order        []network.RequestID
	records      map[network.RequestID]*capture.NetworkRecord
	inflight     map[network.RequestID]struct{}
	lastActivity time.Time
}

func newNetworkRecorder() *networkRecorder {
	return &networkRecorder{
		records:      make(map[network.RequestID]*capture.NetworkRecord),
		inflight:     make(map[network.RequestID]struct{}),
		lastActivity: time.Now(),
	}
}

func (r *networkRecorder) handleEvent(ev any) {
	switch event := ev.(type) {
	case *network.EventRequestWillBeSent:
		r.onRequest(event)
	case *network.EventResponseReceived:
		r.onResponse(event)
	case *network.EventLoadingFinished:
		r.onSettled(event.RequestID)
	case *network.EventLoadingFailed:
		r.onSettled(event.RequestID)
	}
}

func (r *networkRecorder) onRequest(event *network.EventRequestWillBeSent) {
	if event.Request == nil {
		return
	}
	observed := time.Now()
	if event.WallTime != nil {
		observed = event.WallTime.Time()
	}
	record := &capture.NetworkRecord{
		Request: capture.RequestInfo{
			URL:      event.Request.URL,
			Method:   event.Request.Method,
			Headers:  headerMap(event.Request.Headers),
			PostData: postData(event.Request),
		},
		Observed: observed,
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, seen := r.records[event.RequestID]; !seen {
		r.order = append(r.order, event.RequestID)
	}
	r.records[event.RequestID] = record
	r.inflight[event.RequestID] = struct{}{}
	r.lastActivity = time.Now()
}

func (r *networkRecorder) onResponse(event *network.EventResponseReceived) {
	if event.Response == nil {
		return
	}
	response := &capture.ResponseInfo{
		Status:  int(event.Response.Status),
		Headers: headerMap(event.Response.Headers),
		Timing:  timingMap(event.Response.Timing),
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if record, ok := r.records[event.RequestID]; ok {
		record.Response = response
	}
	r.lastActivity = time.Now()
}

func (r *networkRecorder) onSettled(id network.RequestID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.inflight, id)
	r.lastActivity = time.Now()
}

// idleFor reports whether no request is in flight and no network event has
// arrived for at least window.
func (r *networkRecorder) idleFor(window time.Duration) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.inflight) == 0 && time.Since(r.lastActivity) >= window
}

// snapshot copies the observed records in request order.
func (r *networkRecorder) snapshot() []capture.NetworkRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	records := make([]capture.NetworkRecord, 0, len(r.order))
	for _, id := range r.order {
		if record, ok := r.records[id]; ok {
			records = append(records, *record)
		}
	}
	return records
}

func headerMap(headers network.Headers) map[string]string {
	if len(headers) == 0 {
		return nil
	}
	out := make(map[string]string, len(headers))
	for key, value := range headers {
		out[key] = fmt.Sprint(value)
	}
	return out
}

// postData reassembles the request body from CDP post data entries, which
// arrive base64-encoded.
func postData(request *network.Request) string {
	if !request.HasPostData || len(request.PostDataEntries) == 0 {
		return ""
	}
	var body []byte
	for _, entry := range request.PostDataEntries {
		if entry == nil || entry.Bytes == "" {
			continue
		}
		decoded, err := base64.StdEncoding.DecodeString(entry.Bytes)
		if err != nil {
			body = append(body, entry.Bytes...)
			continue
		}
		body = append(body, decoded...)
	}
	return string(body)
}

func timingMap(timing *network.ResourceTiming) map[string]float64 {
	if timing == nil {
		return nil
	}
	return map[string]float64{
		"requestTime":       timing.RequestTime,
		"dnsStart":          timing.DNSStart,
		"dnsEnd":            timing.DNSEnd,
		"connectStart":      timing.ConnectStart,
		"connectEnd":        timing.ConnectEnd,
		"sendStart":         timing.SendStart,
		"sendEnd":           timing.SendEnd,
		"receiveHeadersEnd": timing.ReceiveHeadersEnd,
	}
}
