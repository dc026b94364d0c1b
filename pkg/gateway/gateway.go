package gateway

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	corev1 "k8s.io/api/core/v1"
	policyv1 "k8s.io/api/policy/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/fields"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/client-go/dynamic"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/util/retry"

	"github.com/cuemby/fleetdrain/pkg/log"
	"github.com/cuemby/fleetdrain/pkg/metrics"
	"github.com/cuemby/fleetdrain/pkg/types"
)

// GameServerResource is the Agones GameServer custom resource
var GameServerResource = schema.GroupVersionResource{
	Group:    "agones.dev",
	Version:  "v1",
	Resource: "gameservers",
}

// Options configures eviction behaviour
type Options struct {
	// SystemNamespace is never evicted
	SystemNamespace string
	// EvictionGracePeriod is sent with every eviction. Zero or negative
	// leaves the pod's own grace period in place.
	EvictionGracePeriod time.Duration
}

// KubernetesGateway performs node and pod operations against the cluster.
// Every mutation re-reads the object first and writes only when something
// changes, so repeated calls are safe.
type KubernetesGateway struct {
	client  kubernetes.Interface
	dynamic dynamic.Interface
	opts    Options
	logger  zerolog.Logger
}

// NewKubernetesGateway creates a gateway over the typed and dynamic clients
func NewKubernetesGateway(client kubernetes.Interface, dyn dynamic.Interface, opts Options) *KubernetesGateway {
	if opts.SystemNamespace == "" {
		opts.SystemNamespace = metav1.NamespaceSystem
	}
	return &KubernetesGateway{
		client:  client,
		dynamic: dyn,
		opts:    opts,
		logger:  log.WithComponent("gateway"),
	}
}

// Cordon marks the node unschedulable
func (g *KubernetesGateway) Cordon(ctx context.Context, node string) error {
	err := retry.RetryOnConflict(retry.DefaultRetry, func() error {
		n, err := g.client.CoreV1().Nodes().Get(ctx, node, metav1.GetOptions{})
		if err != nil {
			return err
		}
		if n.Spec.Unschedulable {
			return nil
		}
		n.Spec.Unschedulable = true
		_, err = g.client.CoreV1().Nodes().Update(ctx, n, metav1.UpdateOptions{})
		return err
	})
	return classify("cordon node", err)
}

// ApplyTaint adds taint to the node unless a taint with the same key and
// effect is already present
func (g *KubernetesGateway) ApplyTaint(ctx context.Context, node string, taint types.Taint) error {
	want := toKubeTaint(taint)

	err := retry.RetryOnConflict(retry.DefaultRetry, func() error {
		n, err := g.client.CoreV1().Nodes().Get(ctx, node, metav1.GetOptions{})
		if err != nil {
			return err
		}
		for i := range n.Spec.Taints {
			if n.Spec.Taints[i].MatchTaint(&want) {
				return nil
			}
		}
		n.Spec.Taints = append(n.Spec.Taints, want)
		_, err = g.client.CoreV1().Nodes().Update(ctx, n, metav1.UpdateOptions{})
		return err
	})
	return classify("apply taint", err)
}

// ApplyToleration adds toleration to the pod backing the workload unless an
// equal toleration is already present
func (g *KubernetesGateway) ApplyToleration(ctx context.Context, w types.Workload, toleration types.Toleration) error {
	want := toKubeToleration(toleration)

	err := retry.RetryOnConflict(retry.DefaultRetry, func() error {
		pod, err := g.client.CoreV1().Pods(w.Namespace).Get(ctx, w.Name, metav1.GetOptions{})
		if err != nil {
			return err
		}
		for i := range pod.Spec.Tolerations {
			if pod.Spec.Tolerations[i].MatchToleration(&want) {
				return nil
			}
		}
		pod.Spec.Tolerations = append(pod.Spec.Tolerations, want)
		_, err = g.client.CoreV1().Pods(w.Namespace).Update(ctx, pod, metav1.UpdateOptions{})
		return err
	})
	return classify("apply toleration", err)
}

// ListAllocatedWorkloads returns the Allocated game servers running on node.
// An empty slice means the node hosts no active session.
func (g *KubernetesGateway) ListAllocatedWorkloads(ctx context.Context, node string) ([]types.Workload, error) {
	list, err := g.dynamic.Resource(GameServerResource).Namespace(metav1.NamespaceAll).List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, classify("list game servers", err)
	}

	workloads := []types.Workload{}
	for i := range list.Items {
		w := workloadFromGameServer(&list.Items[i])
		if w.NodeName == node && w.Allocated() {
			workloads = append(workloads, w)
		}
	}
	return workloads, nil
}

func workloadFromGameServer(obj *unstructured.Unstructured) types.Workload {
	state, _, _ := unstructured.NestedString(obj.Object, "status", "state")
	nodeName, _, _ := unstructured.NestedString(obj.Object, "status", "nodeName")
	return types.Workload{
		Name:      obj.GetName(),
		Namespace: obj.GetNamespace(),
		State:     state,
		NodeName:  nodeName,
	}
}

// EvictAllExceptSystem sends an eviction for every pod on node outside the
// system namespace. Failures on individual pods are logged and counted; the
// returned error is set only when the pods could not be listed.
func (g *KubernetesGateway) EvictAllExceptSystem(ctx context.Context, node string) (types.EvictionSummary, error) {
	var summary types.EvictionSummary

	pods, err := g.client.CoreV1().Pods(metav1.NamespaceAll).List(ctx, metav1.ListOptions{
		FieldSelector: fields.OneTermEqualSelector("spec.nodeName", node).String(),
	})
	if err != nil {
		return summary, classify("list pods", err)
	}

	for i := range pods.Items {
		pod := &pods.Items[i]
		if pod.Spec.NodeName != node {
			continue
		}
		if pod.Namespace == g.opts.SystemNamespace {
			summary.Skipped++
			metrics.EvictionsTotal.WithLabelValues("skipped").Inc()
			continue
		}

		summary.Total++
		if err := g.evictPod(ctx, pod); err != nil {
			summary.Failed++
			metrics.EvictionsTotal.WithLabelValues("failed").Inc()
			g.logger.Warn().
				Err(err).
				Str("node", node).
				Str("pod", pod.Namespace+"/"+pod.Name).
				Msg("Failed to evict pod")
			continue
		}
		summary.Evicted++
		metrics.EvictionsTotal.WithLabelValues("evicted").Inc()
	}

	g.logger.Info().
		Str("node", node).
		Int("evicted", summary.Evicted).
		Int("failed", summary.Failed).
		Int("skipped", summary.Skipped).
		Msg("Eviction pass complete")

	return summary, nil
}

func (g *KubernetesGateway) evictPod(ctx context.Context, pod *corev1.Pod) error {
	eviction := &policyv1.Eviction{
		ObjectMeta: metav1.ObjectMeta{
			Name:      pod.Name,
			Namespace: pod.Namespace,
		},
	}
	if g.opts.EvictionGracePeriod > 0 {
		grace := int64(g.opts.EvictionGracePeriod / time.Second)
		eviction.DeleteOptions = &metav1.DeleteOptions{GracePeriodSeconds: &grace}
	}

	err := g.client.CoreV1().Pods(pod.Namespace).EvictV1(ctx, eviction)
	if apierrors.IsNotFound(err) {
		return nil
	}
	if apierrors.IsTooManyRequests(err) {
		return fmt.Errorf("disruption budget prevents eviction: %w", err)
	}
	return err
}

// Ping checks that the API server answers
func (g *KubernetesGateway) Ping(ctx context.Context) error {
	_, err := g.client.Discovery().ServerVersion()
	return classify("server version", err)
}

func toKubeTaint(t types.Taint) corev1.Taint {
	return corev1.Taint{
		Key:    t.Key,
		Value:  t.Value,
		Effect: corev1.TaintEffect(t.Effect),
	}
}

func toKubeToleration(t types.Toleration) corev1.Toleration {
	return corev1.Toleration{
		Key:               t.Key,
		Operator:          corev1.TolerationOperator(t.Operator),
		Value:             t.Value,
		Effect:            corev1.TaintEffect(t.Effect),
		TolerationSeconds: t.TolerationSeconds,
	}
}

// classify converts API errors into types.Error kinds
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	kind := types.ErrorKindTransient
	switch {
	case apierrors.IsNotFound(err):
		kind = types.ErrorKindNotFound
	case apierrors.IsConflict(err), apierrors.IsAlreadyExists(err):
		kind = types.ErrorKindConflict
	case apierrors.IsInvalid(err), apierrors.IsBadRequest(err):
		kind = types.ErrorKindInvalid
	}
	return types.NewError(kind, op, err)
}
