package api

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/bluenviron/mtxplayer/internal/conf"
	"github.com/bluenviron/mtxplayer/internal/defs"
	"github.com/bluenviron/mtxplayer/internal/player"
	"github.com/bluenviron/mtxplayer/internal/test"
)

type playCall struct {
	name          string
	mediaSourceID uint64
	blob          []byte
}

type pauseCall struct {
	name       string
	fragmentID uint64
	paused     bool
}

type dummyPlayer struct {
	plays  []playCall
	stops  []playCall
	pauses []pauseCall
}

func (p *dummyPlayer) Play(name string, mediaSourceID uint64, blob []byte) (uint64, error) {
	if name != "out" {
		return 0, conf.ErrStreamNotFound
	}
	if string(blob) == "garbage" {
		return 0, defs.ErrPlayFailed
	}
	p.plays = append(p.plays, playCall{name, mediaSourceID, blob})
	return 7, nil
}

func (p *dummyPlayer) Stop(name string, mediaSourceID uint64, fragmentID uint64) (int, error) {
	if name != "out" {
		return 0, conf.ErrStreamNotFound
	}
	p.stops = append(p.stops, playCall{name, mediaSourceID, []byte{byte(fragmentID)}})
	return 2, nil
}

func (p *dummyPlayer) Pause(name string, fragmentID uint64, paused bool) error {
	if fragmentID == 99 {
		return player.ErrFragmentNotFound
	}
	p.pauses = append(p.pauses, pauseCall{name, fragmentID, paused})
	return nil
}

func (p *dummyPlayer) APIStreamsList() (*defs.APIStreamList, error) {
	return &defs.APIStreamList{
		Items: []*defs.APIStream{
			{Name: "aac", SSRC: 2000},
			{Name: "out", SSRC: 1000},
		},
	}, nil
}

func (p *dummyPlayer) APIStreamsGet(name string) (*defs.APIStream, error) {
	if name != "out" {
		return nil, conf.ErrStreamNotFound
	}
	return &defs.APIStream{
		Name:        "out",
		SSRC:        1000,
		Mime:        "audio/opus",
		ClockRate:   48000,
		PayloadType: 111,
	}, nil
}

func (p *dummyPlayer) APIStreamsSDP(name string) ([]byte, error) {
	if name != "out" {
		return nil, conf.ErrStreamNotFound
	}
	return []byte("v=0\r\n"), nil
}

func newTestAPI(t *testing.T, p defs.Player) string {
	a := &API{
		Address:      "localhost:0",
		ReadTimeout:  conf.Duration(10 * time.Second),
		WriteTimeout: conf.Duration(10 * time.Second),
		Player:       p,
		Parent:       test.NilLogger,
	}
	err := a.Initialize()
	require.NoError(t, err)
	t.Cleanup(a.Close)

	return "http://" + a.Addr().String()
}

func httpRequest(t *testing.T, method string, u string, body []byte, out any) int {
	req, err := http.NewRequest(method, u, bytes.NewReader(body))
	require.NoError(t, err)

	tr := &http.Transport{}
	defer tr.CloseIdleConnections()
	hc := &http.Client{Transport: tr}

	res, err := hc.Do(req)
	require.NoError(t, err)
	defer res.Body.Close()

	if out != nil {
		if b, ok := out.(*[]byte); ok {
			*b, err = io.ReadAll(res.Body)
			require.NoError(t, err)
		} else {
			err = json.NewDecoder(res.Body).Decode(out)
			require.NoError(t, err)
		}
	}

	return res.StatusCode
}

func TestStreamsList(t *testing.T) {
	u := newTestAPI(t, &dummyPlayer{})

	var out defs.APIStreamList
	status := httpRequest(t, http.MethodGet, u+"/v1/streams/list?itemsPerPage=1&page=1", nil, &out)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, 2, out.ItemCount)
	require.Equal(t, 2, out.PageCount)
	require.Len(t, out.Items, 1)
	require.Equal(t, "out", out.Items[0].Name)

	var apiErr defs.APIError
	status = httpRequest(t, http.MethodGet, u+"/v1/streams/list?itemsPerPage=0", nil, &apiErr)
	require.Equal(t, http.StatusBadRequest, status)
	require.Equal(t, "invalid 'itemsPerPage'", apiErr.Error)
}

func TestStreamsGet(t *testing.T) {
	u := newTestAPI(t, &dummyPlayer{})

	var out defs.APIStream
	status := httpRequest(t, http.MethodGet, u+"/v1/streams/get/out", nil, &out)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, defs.APIStream{
		Name:        "out",
		SSRC:        1000,
		Mime:        "audio/opus",
		ClockRate:   48000,
		PayloadType: 111,
	}, out)

	var apiErr defs.APIError
	status = httpRequest(t, http.MethodGet, u+"/v1/streams/get/missing", nil, &apiErr)
	require.Equal(t, http.StatusNotFound, status)
	require.Equal(t, "stream not found", apiErr.Error)
}

func TestStreamsSDP(t *testing.T) {
	u := newTestAPI(t, &dummyPlayer{})

	var out []byte
	status := httpRequest(t, http.MethodGet, u+"/v1/streams/sdp/out", nil, &out)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, "v=0\r\n", string(out))
}

func TestStreamsPlay(t *testing.T) {
	p := &dummyPlayer{}
	u := newTestAPI(t, p)

	var res defs.APIPlayResult
	status := httpRequest(t, http.MethodPost, u+"/v1/streams/play/out?sourceId=42", []byte{1, 2, 3}, &res)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, uint64(7), res.FragmentID)
	require.Equal(t, []playCall{{"out", 42, []byte{1, 2, 3}}}, p.plays)

	for _, ca := range []struct {
		name   string
		path   string
		body   []byte
		status int
		err    string
	}{
		{"empty blob", "/v1/streams/play/out", nil, http.StatusBadRequest, "blob is empty"},
		{"invalid source", "/v1/streams/play/out?sourceId=abc", []byte{1}, http.StatusBadRequest, "invalid 'sourceId'"},
		{"missing stream", "/v1/streams/play/missing", []byte{1}, http.StatusNotFound, "stream not found"},
		{"unplayable blob", "/v1/streams/play/out", []byte("garbage"), http.StatusUnprocessableEntity, "blob cannot be played"},
	} {
		t.Run(ca.name, func(t *testing.T) {
			var apiErr defs.APIError
			status := httpRequest(t, http.MethodPost, u+ca.path, ca.body, &apiErr)
			require.Equal(t, ca.status, status)
			require.Equal(t, ca.err, apiErr.Error)
		})
	}
}

func TestStreamsStop(t *testing.T) {
	p := &dummyPlayer{}
	u := newTestAPI(t, p)

	var res defs.APIStopResult
	status := httpRequest(t, http.MethodPost, u+"/v1/streams/stop/out?sourceId=42&fragmentId=3", nil, &res)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, 2, res.Stopped)
	require.Equal(t, []playCall{{"out", 42, []byte{3}}}, p.stops)
}

func TestStreamsPause(t *testing.T) {
	p := &dummyPlayer{}
	u := newTestAPI(t, p)

	status := httpRequest(t, http.MethodPost, u+"/v1/streams/pause/out?fragmentId=3", nil, nil)
	require.Equal(t, http.StatusOK, status)

	status = httpRequest(t, http.MethodPost, u+"/v1/streams/resume/out?fragmentId=3", nil, nil)
	require.Equal(t, http.StatusOK, status)

	require.Equal(t, []pauseCall{
		{"out", 3, true},
		{"out", 3, false},
	}, p.pauses)

	var apiErr defs.APIError
	status = httpRequest(t, http.MethodPost, u+"/v1/streams/pause/out", nil, &apiErr)
	require.Equal(t, http.StatusBadRequest, status)
	require.Equal(t, "'fragmentId' is missing", apiErr.Error)

	status = httpRequest(t, http.MethodPost, u+"/v1/streams/pause/out?fragmentId=99", nil, &apiErr)
	require.Equal(t, http.StatusNotFound, status)
	require.Equal(t, "fragment not found", apiErr.Error)
}
