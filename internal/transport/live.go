package transport

import (
	"net/http"
	"time"

	"github.com/anime-shed/meter-reader-go/internal/config"
	"github.com/anime-shed/meter-reader-go/internal/frame"
	"github.com/anime-shed/meter-reader-go/internal/hub"
	"github.com/anime-shed/meter-reader-go/internal/logger"
	"github.com/anime-shed/meter-reader-go/internal/observer"
	"github.com/anime-shed/meter-reader-go/pkg/models"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const cameraReadWait = 60 * time.Second

func monitorStatus(deps Dependencies) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, deps.Monitor.Status())
	}
}

func startMonitor(deps Dependencies) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.MonitorRequest
		if c.Request.ContentLength != 0 {
			if err := c.ShouldBindJSON(&req); err != nil {
				respondError(c, http.StatusBadRequest, "invalid request format", err)
				return
			}
		}
		if req.AutoCapture != nil {
			deps.Monitor.SetAutoCapture(*req.AutoCapture)
		}
		if err := deps.Monitor.Start(deps.BaseContext); err != nil {
			respondAppError(c, "monitor not started", err)
			return
		}
		c.JSON(http.StatusOK, deps.Monitor.Status())
	}
}

func stopMonitor(deps Dependencies) gin.HandlerFunc {
	return func(c *gin.Context) {
		deps.Monitor.Stop()
		c.JSON(http.StatusOK, deps.Monitor.Status())
	}
}

// cameraSocket receives encoded frames as binary messages and publishes
// them to the live feed. Text messages are ignored.
func cameraSocket(deps Dependencies, cfg *config.Config) gin.HandlerFunc {
	log := logger.Component("camera_socket")
	return func(c *gin.Context) {
		conn, err := hub.Upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			log.WithError(err).Warn("WebSocket upgrade error")
			return
		}
		defer conn.Close()

		conn.SetReadLimit(cfg.MaxRequestBodySize)
		conn.SetReadDeadline(time.Now().Add(cameraReadWait))
		conn.SetPongHandler(func(string) error {
			conn.SetReadDeadline(time.Now().Add(cameraReadWait))
			return nil
		})

		log.WithField("ip", c.ClientIP()).Info("Camera connected")
		for {
			msgType, msg, err := conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					log.WithError(err).Warn("Camera connection lost")
				}
				break
			}
			conn.SetReadDeadline(time.Now().Add(cameraReadWait))
			if msgType != websocket.BinaryMessage {
				continue
			}

			f, err := frame.DecodeBytes(msg)
			if err != nil {
				log.WithError(err).WithField("bytes", len(msg)).Debug("Dropping undecodable frame")
				continue
			}
			seq := deps.Feed.Publish(f)
			if deps.Publisher != nil {
				deps.Publisher.NotifyObservers(c.Request.Context(), observer.ScanEvent{
					EventType: observer.FrameReceived,
					Source:    models.SourceLive,
					Success:   true,
					Metadata: map[string]any{
						"sequence": seq,
						"width":    f.Width(),
						"height":   f.Height(),
					},
				})
			}
		}
		log.WithFields(logrus.Fields{"ip": c.ClientIP()}).Info("Camera disconnected")
	}
}
