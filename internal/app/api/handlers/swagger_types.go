package handlers

import (
	"github.com/finflow/reconciler/pkg/response"
	"github.com/finflow/reconciler/pkg/types"
)

// Concrete envelope instantiations referenced by swagger annotations.

type RespOK = response.APIResponse[any]

type RespSubscriptionInfo = response.APIResponse[*types.SubscriptionInfo]

type RespCleanup = response.APIResponse[map[string]int]
