package edge

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/streamforge/live/internal/domain"
	rerrors "github.com/streamforge/live/internal/errors"
	"github.com/streamforge/live/internal/mediastore"
	"github.com/streamforge/live/internal/metastore"
)

// handlePlaylist serves both master.m3u8 and {rendition}.m3u8: gin cannot
// register a literal path segment alongside a named parameter at the same
// position without risking a route-tree conflict, so both live behind one
// :playlistFile parameter and branch here instead.
func (s *Server) handlePlaylist(c *gin.Context) {
	ctx := c.Request.Context()
	org := c.Param("org")
	scope := c.Param("roomOrRecording")
	file := c.Param("playlistFile")

	target, err := resolveTarget(ctx, s.deps, org, scope)
	if err != nil {
		s.respondResolveError(c, err)
		return
	}

	rawQuery := c.Request.URL.RawQuery

	if file == "master.m3u8" {
		s.handleMasterPlaylist(c, target, rawQuery)
		return
	}
	if !strings.HasSuffix(file, ".m3u8") {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	rendition, err := domain.ParseRendition(strings.TrimSuffix(file, ".m3u8"))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "unknown rendition"})
		return
	}
	s.handleRenditionPlaylist(c, target, rendition, rawQuery)
}

func (s *Server) handleMasterPlaylist(c *gin.Context, target *playbackTarget, rawQuery string) {
	ctx := c.Request.Context()
	var text string
	if target.Live {
		master, err := metastore.GetMasterManifest(ctx, s.deps.Meta, target.ConnectionID.String())
		if err != nil {
			s.respondStoreError(c, err)
			return
		}
		text = buildMasterPlaylist(master, rawQuery)
	} else {
		text = buildVODMasterPlaylist(target.Renditions, rawQuery)
	}
	servePlaylist(c, text)
}

func (s *Server) handleRenditionPlaylist(c *gin.Context, target *playbackTarget, rendition domain.Rendition, rawQuery string) {
	ctx := c.Request.Context()

	if !target.Live {
		rec, err := s.deps.Recordings.GetRecording(ctx, target.RecordingID, rendition.String())
		if err != nil {
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "rendition not found"})
			return
		}
		servePlaylist(c, buildVODMediaPlaylist(rec))
		return
	}

	br, ok := parseBlockingRequest(c.Request.URL.Query())
	if !ok {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid blocking-reload parameters"})
		return
	}
	m, waited, err := awaitManifest(ctx, s.deps, target.ConnectionID, rendition, br, s.deps.Policy.EdgeBlockingCap)
	if err != nil {
		s.respondStoreError(c, err)
		return
	}
	if waited > 0 {
		s.deps.Metrics.BlockingReloadWaitSeconds.Observe(waited.Seconds())
	}
	servePlaylist(c, buildLiveMediaPlaylist(m, ""))
}

func servePlaylist(c *gin.Context, text string) {
	c.Header("Cache-Control", mediastore.CacheControl("x.m3u8"))
	c.Header("Access-Control-Allow-Origin", "*")
	c.Data(http.StatusOK, mediastore.ContentType("x.m3u8"), []byte(text))
}

// handleMedia serves both init.mp4 and {part_idx}.m4s under a rendition,
// for the same route-tree reason handlePlaylist covers both playlist
// kinds itself.
func (s *Server) handleMedia(c *gin.Context) {
	ctx := c.Request.Context()
	org := c.Param("org")
	scope := c.Param("roomOrRecording")
	file := c.Param("mediaFile")

	target, err := resolveTarget(ctx, s.deps, org, scope)
	if err != nil {
		s.respondResolveError(c, err)
		return
	}
	rendition, err := domain.ParseRendition(c.Param("rendition"))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "unknown rendition"})
		return
	}

	if file == "init.mp4" {
		s.serveInit(c, target, rendition)
		return
	}
	if strings.HasSuffix(file, ".m4s") {
		idx, perr := strconv.ParseUint(strings.TrimSuffix(file, ".m4s"), 10, 64)
		if perr != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid part index"})
			return
		}
		s.servePart(c, target, rendition, idx)
		return
	}
	c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "not found"})
}

func (s *Server) serveInit(c *gin.Context, target *playbackTarget, rendition domain.Rendition) {
	if target.Live {
		s.serveObject(c, domain.InitObjectKey(target.ConnectionID, rendition))
		return
	}
	rec, err := s.deps.Recordings.GetRecording(c.Request.Context(), target.RecordingID, rendition.String())
	if err != nil || rec.InitSegmentKey == "" {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "init segment not found"})
		return
	}
	s.serveObject(c, rec.InitSegmentKey)
}

func (s *Server) servePart(c *gin.Context, target *playbackTarget, rendition domain.Rendition, idx uint64) {
	if target.Live {
		s.serveObject(c, domain.PartObjectKey(target.ConnectionID, rendition, idx))
		return
	}
	rec, err := s.deps.Recordings.GetRecording(c.Request.Context(), target.RecordingID, rendition.String())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "segment not found"})
		return
	}
	for _, seg := range rec.Segments {
		if seg.Idx == idx {
			s.serveObject(c, seg.S3Key)
			return
		}
	}
	c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "segment not found"})
}

// serveObject streams one Media Store object, honoring a single-range
// Range header (§4.3's Range support on parts) and falling back to a full
// body otherwise.
func (s *Server) serveObject(c *gin.Context, key string) {
	ctx := c.Request.Context()
	ct := mediastore.ContentType(key)
	cc := mediastore.CacheControl(key)
	rangeHeader := c.GetHeader("Range")

	if rangeHeader == "" {
		data, err := s.deps.Media.Read(ctx, key)
		if err != nil {
			s.respondStoreError(c, err)
			return
		}
		c.Header("Cache-Control", cc)
		c.Header("Accept-Ranges", "bytes")
		c.Data(http.StatusOK, ct, data)
		return
	}

	size, err := s.deps.Media.Stat(ctx, key)
	if err != nil {
		s.respondStoreError(c, err)
		return
	}
	offset, length, ok := parseByteRange(rangeHeader, size)
	if !ok {
		c.Header("Content-Range", fmt.Sprintf("bytes */%d", size))
		c.AbortWithStatus(http.StatusRequestedRangeNotSatisfiable)
		return
	}
	rc, err := s.deps.Media.ReadRange(ctx, key, offset, length)
	if err != nil {
		s.respondStoreError(c, err)
		return
	}
	defer rc.Close()

	c.Header("Cache-Control", cc)
	c.Header("Accept-Ranges", "bytes")
	c.Header("Content-Range", fmt.Sprintf("bytes %d-%d/%d", offset, offset+length-1, size))
	c.DataFromReader(http.StatusPartialContent, length, ct, rc, nil)
}

// parseByteRange parses a single-range "bytes=start-end" header (multipart
// ranges are not supported — every real HLS client requests one range at
// a time for a CMAF part).
func parseByteRange(header string, size int64) (offset, length int64, ok bool) {
	const prefix = "bytes="
	if !strings.HasPrefix(header, prefix) {
		return 0, 0, false
	}
	spec := strings.TrimPrefix(header, prefix)
	if strings.Contains(spec, ",") {
		return 0, 0, false
	}
	parts := strings.SplitN(spec, "-", 2)
	if len(parts) != 2 {
		return 0, 0, false
	}
	if parts[0] == "" {
		// suffix range: last N bytes
		n, err := strconv.ParseInt(parts[1], 10, 64)
		if err != nil || n <= 0 {
			return 0, 0, false
		}
		if n > size {
			n = size
		}
		return size - n, n, true
	}
	start, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil || start < 0 || start >= size {
		return 0, 0, false
	}
	end := size - 1
	if parts[1] != "" {
		e, err := strconv.ParseInt(parts[1], 10, 64)
		if err != nil || e < start {
			return 0, 0, false
		}
		if e < end {
			end = e
		}
	}
	return start, end - start + 1, true
}

func (s *Server) respondResolveError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrUnknownTarget), errors.Is(err, ErrOrgMismatch):
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, ErrTargetGone):
		c.AbortWithStatusJSON(http.StatusGone, gin.H{"error": "room finished"})
	case rerrors.IsStoreError(err):
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "upstream store unavailable"})
	default:
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func (s *Server) respondStoreError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, metastore.ErrNotFound), errors.Is(err, mediastore.ErrNotExist), errors.Is(err, ErrUnknownTarget):
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "not found"})
	case rerrors.IsStoreError(err):
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "upstream store unavailable"})
	default:
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
