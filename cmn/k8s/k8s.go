// Package k8s detects whether the profiled process is running inside a
// Kubernetes pod and, if so, resolves a namespacing suffix for the
// cross-process shared-memory region name (arbiter, C9). Two unrelated
// pods time-sliced onto the same physical GPU by a device plugin must not
// collide on the same /dev/shm name, or one would observe the other's
// outstanding-kernel count and blame the GPU as busy when it is not.
package k8s

import (
	"context"
	"os"
	"time"

	"github.com/hpcgpu/blameshift/cmn/nlog"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
)

const (
	podNameEnv      = "HOSTNAME"
	podNamespaceEnv = "POD_NAMESPACE"
	queryTimeout    = 2 * time.Second
)

var (
	podUID   string
	nodeName string
)

// Init attempts in-cluster discovery; failures are logged and absorbed —
// this is pure observability/namespacing convenience, never required for
// correctness (spec.md §7 degradation philosophy: IPC unavailability is
// non-fatal).
func Init() {
	cfg, err := rest.InClusterConfig()
	if err != nil {
		nlog.Infof("non-Kubernetes deployment (in-cluster config: %v)", err)
		return
	}
	clientset, err := kubernetes.NewForConfig(cfg)
	if err != nil {
		nlog.Warningf("k8s client init failed: %v", err)
		return
	}

	podName := os.Getenv(podNameEnv)
	namespace := os.Getenv(podNamespaceEnv)
	if podName == "" || namespace == "" {
		nlog.Infoln("HOSTNAME/POD_NAMESPACE not set => treating as non-Kubernetes deployment")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
	defer cancel()
	var pod *corev1.Pod
	pod, err = clientset.CoreV1().Pods(namespace).Get(ctx, podName, metav1.GetOptions{})
	if err != nil {
		nlog.Warningf("failed to get pod %s/%s: %v", namespace, podName, err)
		return
	}
	podUID = string(pod.UID)
	nodeName = pod.Spec.NodeName
	nlog.Infof("running in pod %s/%s (uid=%s) on node %s", namespace, podName, podUID, nodeName)
}

func IsK8s() bool { return podUID != "" }

// NamespaceSuffix returns the pod UID to fold into a shared-memory object
// name, or "" outside Kubernetes (callers fall back to a bare device ID).
func NamespaceSuffix() string { return podUID }
