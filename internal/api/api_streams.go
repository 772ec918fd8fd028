package api //nolint:revive

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/bluenviron/mtxplayer/internal/defs"
)

func (a *API) onStreamsList(ctx *gin.Context) {
	data, err := a.Player.APIStreamsList()
	if err != nil {
		a.writeError(ctx, errorStatus(err), err)
		return
	}

	data.ItemCount = len(data.Items)
	data.Items, data.PageCount, err = paginate(data.Items, ctx.Query("itemsPerPage"), ctx.Query("page"))
	if err != nil {
		a.writeError(ctx, http.StatusBadRequest, err)
		return
	}

	ctx.JSON(http.StatusOK, data)
}

func (a *API) onStreamsGet(ctx *gin.Context) {
	data, err := a.Player.APIStreamsGet(ctx.Param("name"))
	if err != nil {
		a.writeError(ctx, errorStatus(err), err)
		return
	}

	ctx.JSON(http.StatusOK, data)
}

func (a *API) onStreamsSDP(ctx *gin.Context) {
	byts, err := a.Player.APIStreamsSDP(ctx.Param("name"))
	if err != nil {
		a.writeError(ctx, errorStatus(err), err)
		return
	}

	ctx.Data(http.StatusOK, "application/sdp", byts)
}

func (a *API) onStreamsPlay(ctx *gin.Context) {
	mediaSourceID, err := queryUint(ctx, "sourceId", false)
	if err != nil {
		a.writeError(ctx, http.StatusBadRequest, err)
		return
	}

	blob, err := io.ReadAll(http.MaxBytesReader(ctx.Writer, ctx.Request.Body, maxBlobSize))
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			a.writeError(ctx, http.StatusRequestEntityTooLarge, err)
		} else {
			a.writeError(ctx, http.StatusBadRequest, err)
		}
		return
	}

	if len(blob) == 0 {
		a.writeError(ctx, http.StatusBadRequest, errEmptyBlob)
		return
	}

	fragmentID, err := a.Player.Play(ctx.Param("name"), mediaSourceID, blob)
	if err != nil {
		a.writeError(ctx, errorStatus(err), err)
		return
	}

	ctx.JSON(http.StatusOK, &defs.APIPlayResult{FragmentID: fragmentID})
}

func (a *API) onStreamsStop(ctx *gin.Context) {
	mediaSourceID, err := queryUint(ctx, "sourceId", false)
	if err != nil {
		a.writeError(ctx, http.StatusBadRequest, err)
		return
	}

	fragmentID, err := queryUint(ctx, "fragmentId", false)
	if err != nil {
		a.writeError(ctx, http.StatusBadRequest, err)
		return
	}

	stopped, err := a.Player.Stop(ctx.Param("name"), mediaSourceID, fragmentID)
	if err != nil {
		a.writeError(ctx, errorStatus(err), err)
		return
	}

	ctx.JSON(http.StatusOK, &defs.APIStopResult{Stopped: stopped})
}

func (a *API) setPaused(ctx *gin.Context, paused bool) {
	fragmentID, err := queryUint(ctx, "fragmentId", true)
	if err != nil {
		a.writeError(ctx, http.StatusBadRequest, err)
		return
	}

	err = a.Player.Pause(ctx.Param("name"), fragmentID, paused)
	if err != nil {
		a.writeError(ctx, errorStatus(err), err)
		return
	}

	ctx.Status(http.StatusOK)
}

func (a *API) onStreamsPause(ctx *gin.Context) {
	a.setPaused(ctx, true)
}

func (a *API) onStreamsResume(ctx *gin.Context) {
	a.setPaused(ctx, false)
}
