package server

import (
	"net/http"
	"strconv"

	"pix-deposit-go/internal/chain"
	"pix-deposit-go/internal/session"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

type createSessionRequest struct {
	WalletAddress string `json:"wallet_address" binding:"required"`
	ChainId       int64  `json:"chain_id"`
	Asset         string `json:"asset"`
}

type amountRequest struct {
	Amount string `json:"amount" binding:"required"`
}

type assetRequest struct {
	Asset string `json:"asset" binding:"required"`
}

func (s *Server) quote(c *gin.Context) {
	amount, err := decimal.NewFromString(c.Query("amount"))
	if err != nil {
		writeError(c, badRequest("amount must be a number"))
		return
	}
	q, err := s.cfg.Policy.Quote(amount)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, q)
}

func (s *Server) getBalance(c *gin.Context) {
	address, ok := addressParam(c)
	if !ok {
		return
	}
	wb, err := s.cfg.Wallets.GetBalance(c.Request.Context(), address)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, wb)
}

func (s *Server) getTransactions(c *gin.Context) {
	address, ok := addressParam(c)
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "0"))
	h, err := s.cfg.Wallets.GetTransactions(c.Request.Context(), address, limit)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, h)
}

func (s *Server) listReceipts(c *gin.Context) {
	address, ok := addressParam(c)
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	records, err := s.cfg.Wallets.ListReceipts(c.Request.Context(), address, limit)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"address": address, "receipts": records})
}

func (s *Server) getReceipt(c *gin.Context) {
	r, err := s.cfg.Wallets.GetReceipt(c.Request.Context(), c.Query("address"), c.Param("hash"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, r)
}

func (s *Server) createSession(c *gin.Context) {
	var req createSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, badRequest("wallet_address is required"))
		return
	}
	if !chain.IsValidAddress(req.WalletAddress) {
		writeError(c, badRequest("invalid wallet address"))
		return
	}
	chainId := req.ChainId
	if chainId == 0 {
		chainId = s.cfg.ChainId
	}

	sess, err := s.cfg.Sessions.Create(wallet(chain.NormalizeAddress(req.WalletAddress), chainId))
	if err != nil {
		writeError(c, err)
		return
	}
	if req.Asset != "" {
		if err := sess.SetAsset(req.Asset); err != nil {
			writeError(c, err)
			return
		}
	}
	c.JSON(http.StatusCreated, sess.View())
}

func (s *Server) withSession(c *gin.Context) (*session.Session, bool) {
	sess, err := s.cfg.Sessions.Get(c.Param("id"))
	if err != nil {
		writeError(c, err)
		return nil, false
	}
	return sess, true
}

func (s *Server) getSession(c *gin.Context) {
	sess, ok := s.withSession(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, sess.View())
}

func (s *Server) closeSession(c *gin.Context) {
	id := c.Param("id")
	if err := s.cfg.Sessions.Remove(id); err != nil {
		writeError(c, err)
		return
	}
	s.cfg.Hub.Forget(id)
	c.Status(http.StatusNoContent)
}

func (s *Server) setAsset(c *gin.Context) {
	sess, ok := s.withSession(c)
	if !ok {
		return
	}
	var req assetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, badRequest("asset is required"))
		return
	}
	if err := sess.SetAsset(req.Asset); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, sess.View())
}

func (s *Server) setAmount(c *gin.Context) {
	sess, ok := s.withSession(c)
	if !ok {
		return
	}
	var req amountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, badRequest("amount is required"))
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		writeError(c, badRequest("amount must be a number"))
		return
	}
	if _, err := sess.SetAmount(amount); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, sess.View())
}

func (s *Server) generateCharge(c *gin.Context) {
	sess, ok := s.withSession(c)
	if !ok {
		return
	}
	if _, err := sess.GenerateCharge(c.Request.Context()); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, sess.View())
}

func (s *Server) markPaid(c *gin.Context) {
	sess, ok := s.withSession(c)
	if !ok {
		return
	}
	if err := sess.MarkPaid(c.Request.Context()); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, sess.View())
}

func (s *Server) cancelSession(c *gin.Context) {
	sess, ok := s.withSession(c)
	if !ok {
		return
	}
	if err := sess.Cancel(); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, sess.View())
}

func addressParam(c *gin.Context) (string, bool) {
	address := c.Param("address")
	if !chain.IsValidAddress(address) {
		writeError(c, badRequest("invalid wallet address"))
		return "", false
	}
	return address, true
}
