package handlers

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"timed-voting-backend/database"
	"timed-voting-backend/session"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// 允许所有来源连接
		return true
	},
}

const (
	// 向客户端写消息的超时时间
	writeWait = 10 * time.Second
	// ping周期，保持连接活跃
	pingPeriod = 30 * time.Second
)

// HandleWebSocket streams tally snapshots for one poll over a WebSocket
// connection. The client receives the current tally on connect and a fresh
// snapshot after every accepted vote; the connection closes when the session
// is evicted.
func HandleWebSocket(c *gin.Context) {
	externalID := c.Param("id")

	view, ok := registry.Get(externalID)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Poll not found"})
		return
	}

	updates, cancel, ok := registry.Subscribe(externalID)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Poll not found"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		cancel()
		log.Printf("WebSocket升级失败: %v", err)
		return
	}
	defer conn.Close()
	defer cancel()

	// 连接建立后立即推送当前票数
	if snap, err := initialSnapshot(externalID, view.PollID); err == nil {
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(snap); err != nil {
			log.Printf("发送初始快照失败: session=%s, %v", externalID, err)
			return
		}
	}

	// 读循环只负责探测客户端断开
	readerDone := make(chan struct{})
	go func() {
		defer close(readerDone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case snap, open := <-updates:
			if !open {
				// 会话已驱逐，通知客户端后关闭
				conn.SetWriteDeadline(time.Now().Add(writeWait))
				conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "poll session ended"))
				return
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(snap); err != nil {
				log.Printf("推送快照失败: session=%s, %v", externalID, err)
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-readerDone:
			return
		}
	}
}

// sse心跳间隔
const sseHeartbeat = 15 * time.Second

// HandleSSE streams the same tally snapshots as the WebSocket endpoint over
// Server-Sent Events, for clients behind proxies that block upgrades.
func HandleSSE(c *gin.Context) {
	externalID := c.Param("id")

	view, ok := registry.Get(externalID)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Poll not found"})
		return
	}

	updates, cancel, ok := registry.Subscribe(externalID)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Poll not found"})
		return
	}
	defer cancel()

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Streaming not supported"})
		return
	}

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	if snap, err := initialSnapshot(externalID, view.PollID); err == nil {
		writeSSEEvent(c, snap)
		flusher.Flush()
	}

	heartbeat := time.NewTicker(sseHeartbeat)
	defer heartbeat.Stop()

	ctx := c.Request.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case snap, open := <-updates:
			if !open {
				fmt.Fprint(c.Writer, "event: end\ndata: {}\n\n")
				flusher.Flush()
				return
			}
			writeSSEEvent(c, snap)
			flusher.Flush()
		case <-heartbeat.C:
			fmt.Fprint(c.Writer, ": heartbeat\n\n")
			flusher.Flush()
		}
	}
}

// initialSnapshot 构造订阅时刻的票数快照
func initialSnapshot(externalID string, pollID uint) (session.TallySnapshot, error) {
	tally, err := database.GetTally(pollID)
	if err != nil {
		log.Printf("获取初始票数失败: poll=%d, %v", pollID, err)
		return session.TallySnapshot{}, err
	}
	return session.TallySnapshot{
		PollID:    externalID,
		Options:   tally,
		Timestamp: time.Now().Unix(),
	}, nil
}

func writeSSEEvent(c *gin.Context, snap session.TallySnapshot) {
	data, err := json.Marshal(snap)
	if err != nil {
		log.Printf("序列化快照失败: %v", err)
		return
	}
	fmt.Fprintf(c.Writer, "event: tally\ndata: %s\n\n", data)
}
