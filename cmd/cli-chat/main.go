package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"sync"
	"time"

	"github.com/campverse/campverse-bot/internal/model"
	"github.com/gorilla/websocket"
)

const heartbeatInterval = 20 * time.Second

// answerMessage bot_answer 的数据，成功和失败共用
type answerMessage struct {
	model.AnswerPayload
	Error string `json:"error,omitempty"`
}

type inbound struct {
	Event string        `json:"event"`
	Data  answerMessage `json:"data"`
}

func main() {
	url := flag.String("url", "ws://localhost:8000/ws", "chatbot 会话通道地址")
	flag.Parse()

	conn, _, err := websocket.DefaultDialer.Dial(*url, nil)
	if err != nil {
		log.Fatalf("❌ Error: %v", err)
	}
	defer conn.Close()

	fmt.Println("\n✅ Connected to CampVerse Chatbot!")
	fmt.Println("Type your questions below. Press Ctrl+C to exit.")

	var writeMu sync.Mutex
	send := func(msg interface{}) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		return conn.WriteJSON(msg)
	}

	answers := make(chan answerMessage)
	done := make(chan struct{})
	go readLoop(conn, answers, done)
	go heartbeat(send, done)

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)
	go func() {
		<-interrupt
		fmt.Println("\n👋 Goodbye!")
		writeMu.Lock()
		conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		writeMu.Unlock()
		os.Exit(0)
	}()

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("\nYou: ")
		if !scanner.Scan() {
			return
		}
		question := strings.TrimSpace(scanner.Text())
		if question == "" {
			fmt.Println("⚠️  Please enter a valid question.")
			continue
		}

		err := send(model.SessionMessage{
			Event: model.EventUserQuestion,
			Data:  model.QuestionRequest{Question: question},
		})
		if err != nil {
			log.Fatalf("❌ Error: %v", err)
		}

		// 等到回答再提示下一次输入
		select {
		case ans := <-answers:
			printAnswer(ans)
		case <-done:
			fmt.Println("\n❌ Disconnected from chatbot backend.")
			return
		}
	}
}

func readLoop(conn *websocket.Conn, answers chan<- answerMessage, done chan<- struct{}) {
	defer close(done)
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var msg inbound
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		if msg.Event == model.EventBotAnswer {
			answers <- msg.Data
		}
	}
}

func heartbeat(send func(interface{}) error, done <-chan struct{}) {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := send(model.SessionMessage{Event: model.EventHeartbeat}); err != nil {
				return
			}
		}
	}
}

func printAnswer(ans answerMessage) {
	fmt.Println("------------------------------")
	if ans.Error != "" {
		fmt.Printf("❌ Error: %s\n", ans.Error)
	} else {
		fmt.Printf("🤖 Bot says: %s\n", ans.Answer)
		fmt.Printf("   (intent: %s, ai: %v)\n", ans.Intent, ans.AIEnhanced)
		if ans.MatchedQuestion != "" {
			fmt.Printf("   (Matched FAQ: %s)\n", ans.MatchedQuestion)
		}
	}
	fmt.Println("------------------------------")
}
