// Command sessionprobe drives a running backend end to end: it opens (or
// reuses) a consultation, joins it over the signaling socket, posts a chat
// line and prints the stored transcript.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/gookit/color"
	"github.com/olekukonko/tablewriter"
	"github.com/sirupsen/logrus"

	"github.com/physioconnect/consult/backend/internal/client"
	"github.com/physioconnect/consult/backend/internal/logger"
	model "github.com/physioconnect/consult/backend/internal/model/consultation"
	"github.com/physioconnect/consult/backend/internal/storage"
)

func main() {
	api := flag.String("api", "http://localhost:8080", "后端 HTTP 地址")
	session := flag.String("session", "", "已有 sessionId，留空则新建会话")
	doctor := flag.String("doctor", "Dr. Probe", "新建会话时的医生名")
	name := flag.String("name", "probe", "加入会话的显示名")
	role := flag.String("role", "doctor", "身份: doctor 或 patient")
	text := flag.String("message", "probe check", "发送的聊天内容，留空则只加入")
	dbPath := flag.String("db", "", "直接读取 badger 目录中的记录，不连接服务")
	timeout := flag.Duration("timeout", 10*time.Second, "整体超时时间")
	verbose := flag.Bool("v", false, "输出客户端日志")
	flag.Parse()

	log := logger.Discard()
	if *verbose {
		log = logger.New("debug", "text")
	}

	if *dbPath != "" {
		if *session == "" {
			fail("-db 需要同时指定 -session")
		}
		messages, err := readStore(*dbPath, *session, log)
		if err != nil {
			fail("读取存储失败: %v", err)
		}
		render(messages)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	base := strings.TrimRight(*api, "/")
	sessionID := *session
	if sessionID == "" {
		created, err := createSession(ctx, base, *doctor)
		if err != nil {
			fail("创建会话失败: %v", err)
		}
		sessionID = created.SessionID
		color.Green.Printf("created session %s\n", sessionID)
	}

	wsURL, err := socketURL(base)
	if err != nil {
		fail("无效的 -api: %v", err)
	}

	c, err := client.Dial(ctx, client.Config{
		URL:       wsURL,
		SessionID: sessionID,
		UserName:  *name,
		UserType:  *role,
		Log:       log,
	})
	if err != nil {
		fail("连接信令失败: %v", err)
	}
	defer c.Close()
	color.Green.Printf("joined %s as %s (%s)\n", sessionID, *name, *role)

	if *text != "" {
		if err := c.SendChat(*text); err != nil {
			fail("发送失败: %v", err)
		}
		if err := awaitEcho(ctx, c, *text); err != nil {
			fail("未收到回显: %v", err)
		}
		color.Green.Println("chat echoed by relay")
	}

	messages, err := fetchMessages(ctx, base, sessionID)
	if err != nil {
		fail("获取消息失败: %v", err)
	}
	render(messages)
}

func fail(format string, args ...any) {
	color.Red.Printf(format+"\n", args...)
	os.Exit(1)
}

// socketURL maps http(s)://host to ws(s)://host/ws.
func socketURL(base string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http", "":
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws"
	return u.String(), nil
}

func createSession(ctx context.Context, base, doctor string) (model.Session, error) {
	body, err := json.Marshal(map[string]string{"doctorName": doctor})
	if err != nil {
		return model.Session{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+"/api/sessions", bytes.NewReader(body))
	if err != nil {
		return model.Session{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	var session model.Session
	if err := doJSON(req, http.StatusCreated, &session); err != nil {
		return model.Session{}, err
	}
	return session, nil
}

func fetchMessages(ctx context.Context, base, sessionID string) ([]model.Message, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"/api/sessions/"+url.PathEscape(sessionID)+"/messages", nil)
	if err != nil {
		return nil, err
	}
	var messages []model.Message
	if err := doJSON(req, http.StatusOK, &messages); err != nil {
		return nil, err
	}
	return messages, nil
}

func doJSON(req *http.Request, want int, out any) error {
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != want {
		var body struct {
			Message string `json:"message"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&body)
		return fmt.Errorf("%s %s: status %d %s", req.Method, req.URL.Path, resp.StatusCode, body.Message)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// awaitEcho waits for the relay to broadcast our chat line back.
func awaitEcho(ctx context.Context, c *client.Client, text string) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case data, ok := <-c.Incoming():
			if !ok {
				return c.Err()
			}
			var frame struct {
				Type    string `json:"type"`
				Message string `json:"message"`
			}
			if err := json.Unmarshal(data, &frame); err != nil {
				continue
			}
			if frame.Type == "user-joined" || frame.Type == "user-left" {
				color.Cyan.Printf("%s\n", data)
			}
			if frame.Type == "chat-message" && frame.Message == text {
				return nil
			}
		}
	}
}

func readStore(path, sessionID string, log *logrus.Logger) ([]model.Message, error) {
	store, err := storage.OpenBadger(path, log)
	if err != nil {
		return nil, err
	}
	defer store.Close()

	if session, err := store.GetSession(context.Background(), sessionID); err == nil {
		state := "active"
		if !session.IsActive {
			state = "ended"
		}
		color.Cyan.Printf("session %s (%s) doctor=%s\n", session.SessionID, state, session.DoctorName)
	}
	return store.ListMessages(context.Background(), sessionID)
}

func render(messages []model.Message) {
	if len(messages) == 0 {
		color.Yellow.Println("no messages")
		return
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Time", "Sender", "Role", "Message"})
	table.SetAutoWrapText(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetBorder(false)

	for _, m := range messages {
		table.Append([]string{
			m.Timestamp.Local().Format("15:04:05.000"),
			m.SenderName,
			string(m.SenderType),
			m.Message,
		})
	}
	table.Render()
}
